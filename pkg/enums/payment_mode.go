package enums

import "fmt"

// PaymentMode identifies how money leaves (or enters) a register.
type PaymentMode string

const (
	PaymentModeCash        PaymentMode = "Espèces"
	PaymentModeCheque      PaymentMode = "Chèque"
	PaymentModeTransfer    PaymentMode = "Virement"
	PaymentModeMobileMoney PaymentMode = "Mobile Money"
	PaymentModeJulaya      PaymentMode = "Julaya"
)

var validPaymentModes = []PaymentMode{
	PaymentModeCash,
	PaymentModeCheque,
	PaymentModeTransfer,
	PaymentModeMobileMoney,
	PaymentModeJulaya,
}

// String implements fmt.Stringer.
func (m PaymentMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMode.
func (m PaymentMode) IsValid() bool {
	for _, candidate := range validPaymentModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// TouchesRegister reports whether the mode moves register cash.
func (m PaymentMode) TouchesRegister() bool {
	return m == PaymentModeCash
}

// RequiresDisbursementNumber reports whether accounting can attach a PC number to the mode.
func (m PaymentMode) RequiresDisbursementNumber() bool {
	return m == PaymentModeCash || m == PaymentModeMobileMoney
}

// ParsePaymentMode converts raw input into a PaymentMode.
func ParsePaymentMode(value string) (PaymentMode, error) {
	for _, candidate := range validPaymentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment mode %q", value)
}
