package enums

import "fmt"

// PaymentStatus tracks how much of an order or payment request has been settled.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "En attente"
	PaymentStatusUnpaid  PaymentStatus = "Non payé"
	PaymentStatusPartial PaymentStatus = "Partiel"
	PaymentStatusPaid    PaymentStatus = "Payé"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusUnpaid,
	PaymentStatusPartial,
	PaymentStatusPaid,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
