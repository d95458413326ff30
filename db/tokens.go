package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// TokenLedger is the bun-backed implementation of the bulk token
// quota ledger.
type TokenLedger struct {
	DB *bun.DB
}

func (l *TokenLedger) FindToken(ctx context.Context, key string) (*models.Token, error) {
	token := &models.Token{}
	err := l.DB.NewSelect().Model(token).Where("key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (l *TokenLedger) InsertToken(ctx context.Context, token *models.Token) error {
	_, err := l.DB.NewInsert().Model(token).Exec(ctx)
	return err
}

// RedeemOne spends one unit in a single conditional update. The guard
// on remaining_quantity makes concurrent redemptions safe: the row can
// never go negative and the quantity is never handed out twice.
func (l *TokenLedger) RedeemOne(ctx context.Context, key string) (int64, error) {
	token := &models.Token{}
	res, err := l.DB.NewUpdate().
		Model(token).
		Set("remaining_quantity = remaining_quantity - 1").
		Set("updated_at = current_timestamp").
		Where("key = ?", key).
		Where("remaining_quantity > 0").
		Returning("remaining_quantity").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		if _, err := l.FindToken(ctx, key); err != nil {
			return 0, err
		}
		return 0, service.ErrQuotaExhausted
	}
	return token.RemainingQuantity, nil
}
