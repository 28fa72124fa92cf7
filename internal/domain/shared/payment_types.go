package shared

// PaymentStatus defines the payment request lifecycle states.
// The only edges are PENDING -> PAID -> CONFIRMED and PENDING -> EXPIRED.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition can leave the status
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusExpired
}

// EventType names the externally visible lifecycle events sent to merchants
type EventType string

const (
	EventPaymentReceived  EventType = "payment_received"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventPaymentExpired   EventType = "payment_expired"
)

// NotificationStatus defines webhook delivery states
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "PENDING"
	NotificationStatusDelivered NotificationStatus = "DELIVERED"
	NotificationStatusFailed    NotificationStatus = "FAILED"
)
