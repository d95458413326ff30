package lnd

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"github.com/micropay-ai/micropay.go/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"gopkg.in/macaroon.v2"
)

// LNDoptions are the options for the connection to the lnd node.
type LNDoptions struct {
	Address      string
	CertFile     string
	CertHex      string
	MacaroonFile string
	MacaroonHex  string
}

type LNDWrapper struct {
	client         lnrpc.LightningClient
	invoicesClient invoicesrpc.InvoicesClient
	IdentityPubkey string
}

func NewLNDclient(lndOptions LNDoptions, ctx context.Context) (*LNDWrapper, error) {
	// Get credentials either from a hex string or a file
	var creds credentials.TransportCredentials
	// if a hex string is provided
	if lndOptions.CertHex != "" {
		cp := x509.NewCertPool()
		cert, err := hex.DecodeString(lndOptions.CertHex)
		if err != nil {
			return nil, err
		}
		cp.AppendCertsFromPEM(cert)
		creds = credentials.NewClientTLSFromCert(cp, "")
		// if a path to a cert file is provided
	} else if lndOptions.CertFile != "" {
		credsFromFile, err := credentials.NewClientTLSFromFile(lndOptions.CertFile, "")
		if err != nil {
			return nil, err
		}
		creds = credsFromFile
	} else {
		return nil, fmt.Errorf("LND credential is missing")
	}

	var macaroonData []byte
	if lndOptions.MacaroonHex != "" {
		macBytes, err := hex.DecodeString(lndOptions.MacaroonHex)
		if err != nil {
			return nil, err
		}
		macaroonData = macBytes
	} else if lndOptions.MacaroonFile != "" {
		macBytes, err := os.ReadFile(lndOptions.MacaroonFile)
		if err != nil {
			return nil, err
		}
		macaroonData = macBytes
	} else {
		return nil, fmt.Errorf("LND macaroon is missing")
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macaroonData); err != nil {
		return nil, err
	}
	macCred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macCred),
	}

	conn, err := grpc.DialContext(ctx, lndOptions.Address, opts...)
	if err != nil {
		return nil, err
	}

	return &LNDWrapper{
		client:         lnrpc.NewLightningClient(conn),
		invoicesClient: invoicesrpc.NewInvoicesClient(conn),
	}, nil
}

// InitLNClient dials the configured node and verifies the connection with a
// GetInfo roundtrip.
func InitLNClient(c *Config, ctx context.Context) (LightningClientWrapper, error) {
	client, err := NewLNDclient(LNDoptions{
		Address:      c.LNDAddress,
		MacaroonFile: c.LNDMacaroonFile,
		MacaroonHex:  c.LNDMacaroonHex,
		CertFile:     c.LNDCertFile,
		CertHex:      c.LNDCertHex,
	}, ctx)
	if err != nil {
		return nil, err
	}
	getInfo, err := client.client.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, err
	}
	client.IdentityPubkey = getInfo.IdentityPubkey
	return client, nil
}

func (lnd *LNDWrapper) CreateInvoice(ctx context.Context, description string, amountSats int64, expiry time.Duration) (*Invoice, error) {
	res, err := lnd.client.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:   description,
		Value:  amountSats,
		Expiry: int64(expiry.Seconds()),
	})
	if err != nil {
		return nil, err
	}
	return &Invoice{
		PaymentHash:    hex.EncodeToString(res.RHash),
		PaymentRequest: res.PaymentRequest,
		AmountSats:     amountSats,
		State:          common.InvoiceStateUnpaid,
		ExpiresAt:      time.Now().Add(expiry),
	}, nil
}

func (lnd *LNDWrapper) CreateHoldInvoice(ctx context.Context, paymentHash []byte, description string, amountSats int64, expiry time.Duration) (*Invoice, error) {
	res, err := lnd.invoicesClient.AddHoldInvoice(ctx, &invoicesrpc.AddHoldInvoiceRequest{
		Memo:   description,
		Hash:   paymentHash,
		Value:  amountSats,
		Expiry: int64(expiry.Seconds()),
	})
	if err != nil {
		return nil, err
	}
	return &Invoice{
		PaymentHash:    hex.EncodeToString(paymentHash),
		PaymentRequest: res.PaymentRequest,
		AmountSats:     amountSats,
		State:          common.InvoiceStateUnpaid,
		ExpiresAt:      time.Now().Add(expiry),
	}, nil
}

func (lnd *LNDWrapper) GetInvoice(ctx context.Context, paymentHash string) (*Invoice, error) {
	rHash, err := hex.DecodeString(paymentHash)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash %s: %w", paymentHash, err)
	}
	res, err := lnd.client.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: rHash})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return wrapInvoice(res), nil
}

func (lnd *LNDWrapper) SettleHoldInvoice(ctx context.Context, preimage []byte) error {
	_, err := lnd.invoicesClient.SettleInvoice(ctx, &invoicesrpc.SettleInvoiceMsg{
		Preimage: preimage,
	})
	return err
}

func (lnd *LNDWrapper) CancelHoldInvoice(ctx context.Context, paymentHash []byte) error {
	_, err := lnd.invoicesClient.CancelInvoice(ctx, &invoicesrpc.CancelInvoiceMsg{
		PaymentHash: paymentHash,
	})
	return err
}

func (lnd *LNDWrapper) GetMainPubkey() string {
	return lnd.IdentityPubkey
}

func wrapInvoice(inv *lnrpc.Invoice) *Invoice {
	expiresAt := time.Unix(inv.CreationDate+inv.Expiry, 0)
	result := &Invoice{
		PaymentHash:    hex.EncodeToString(inv.RHash),
		PaymentRequest: inv.PaymentRequest,
		AmountSats:     inv.Value,
		ExpiresAt:      expiresAt,
	}
	switch inv.State {
	case lnrpc.Invoice_OPEN:
		result.State = common.InvoiceStateUnpaid
	case lnrpc.Invoice_ACCEPTED:
		result.State = common.InvoiceStateHeld
	case lnrpc.Invoice_SETTLED:
		result.State = common.InvoiceStateConfirmed
		result.Preimage = hex.EncodeToString(inv.RPreimage)
	case lnrpc.Invoice_CANCELED:
		if time.Now().After(expiresAt) {
			result.State = common.InvoiceStateExpired
		} else {
			result.State = common.InvoiceStateCanceled
		}
	}
	return result
}
