package common

// OrderState is the closed set of states an order moves through. Every
// state defines both a client-facing message and a progress percentage so
// the status endpoint can never return a state without them.
type OrderState string

const (
	OrderStateInvoiceNotPaid OrderState = "INVOICE_NOT_PAID"
	OrderStateGenerating     OrderState = "GENERATING"
	OrderStateUploading      OrderState = "UPLOADING"
	OrderStateSaving         OrderState = "SAVING"
	OrderStateGenerated      OrderState = "GENERATED"
	OrderStateFailed         OrderState = "FAILED"
	OrderStateCanceled       OrderState = "CANCELED"
	OrderStateServerError    OrderState = "SERVER_ERROR"
)

const (
	InvoiceStateUnpaid    = "unpaid"
	InvoiceStateHeld      = "held"
	InvoiceStateConfirmed = "confirmed"
	InvoiceStateCanceled  = "canceled"
	InvoiceStateExpired   = "expired"
)

const (
	EventOrderSettled     = "order_settled"
	EventOrderFailed      = "order_failed"
	EventRefundRequested  = "refund_requested"
	EventFeedbackReceived = "feedback_received"
)

// OrderStates lists every state exactly once, for exhaustiveness checks in
// tests and for the startup recovery query.
var OrderStates = []OrderState{
	OrderStateInvoiceNotPaid,
	OrderStateGenerating,
	OrderStateUploading,
	OrderStateSaving,
	OrderStateGenerated,
	OrderStateFailed,
	OrderStateCanceled,
	OrderStateServerError,
}

func (s OrderState) Progress() int {
	switch s {
	case OrderStateInvoiceNotPaid:
		return 20
	case OrderStateGenerating:
		return 60
	case OrderStateUploading:
		return 80
	case OrderStateSaving:
		return 90
	case OrderStateGenerated:
		return 100
	case OrderStateFailed, OrderStateCanceled, OrderStateServerError:
		return 0
	}
	return 0
}

func (s OrderState) Message() string {
	switch s {
	case OrderStateInvoiceNotPaid:
		return "Order received! Waiting for payment..."
	case OrderStateGenerating:
		return "Payment received! Generating images..."
	case OrderStateUploading:
		return "Images generated! Uploading images to cloud..."
	case OrderStateSaving:
		return "Saving images."
	case OrderStateGenerated:
		return "Images have been generated."
	case OrderStateFailed:
		return "Image generation failed. Your payment has been refunded."
	case OrderStateCanceled:
		return "Invoice was canceled."
	case OrderStateServerError:
		return "An error occurred on the server."
	}
	return "Unknown order state."
}

// Terminal reports whether an order in this state may never transition
// again. Results and settlement decisions are sealed at that point.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateGenerated, OrderStateFailed, OrderStateCanceled, OrderStateServerError:
		return true
	}
	return false
}
