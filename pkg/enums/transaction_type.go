package enums

import "fmt"

// TransactionType classifies an entry of the register transaction log.
type TransactionType string

const (
	TransactionTypeOpening       TransactionType = "opening"
	TransactionTypeFundingCredit TransactionType = "funding_credit"
	TransactionTypePaymentDebit  TransactionType = "payment_debit"
	TransactionTypePaymentRefund TransactionType = "payment_refund"
	TransactionTypeAdjustment    TransactionType = "adjustment"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeOpening,
	TransactionTypeFundingCredit,
	TransactionTypePaymentDebit,
	TransactionTypePaymentRefund,
	TransactionTypeAdjustment,
}

// IsValid reports whether the value matches a known transaction type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
