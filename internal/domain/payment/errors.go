package payment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrPaymentNotFound indicates a missing payment request
type ErrPaymentNotFound struct {
	PaymentID uuid.UUID
}

func (e ErrPaymentNotFound) Error() string {
	return "payment request not found: " + e.PaymentID.String()
}

// ErrDuplicateAddress indicates an attempt to reuse a payment address
type ErrDuplicateAddress struct {
	Address string
}

func (e ErrDuplicateAddress) Error() string {
	return "payment address already assigned: " + e.Address
}

// ErrBackwardObservation reports a ledger observation that would move the amount or
// the confirmation count backwards. It is never applied.
type ErrBackwardObservation struct {
	PaymentID             uuid.UUID
	RecordedAmount        decimal.Decimal
	ObservedAmount        decimal.Decimal
	RecordedConfirmations int64
	ObservedConfirmations int64
}

func (e ErrBackwardObservation) Error() string {
	return fmt.Sprintf("backward observation for payment %s: amount %s -> %s, confirmations %d -> %d",
		e.PaymentID, e.RecordedAmount, e.ObservedAmount, e.RecordedConfirmations, e.ObservedConfirmations)
}
