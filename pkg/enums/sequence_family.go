package enums

import "fmt"

// SequenceFamily names an independent reference-number counter.
type SequenceFamily string

const (
	SequenceFunding        SequenceFamily = "funding"
	SequencePaymentRequest SequenceFamily = "payment_request"
	SequencePayment        SequenceFamily = "payment"
	SequenceDisbursement   SequenceFamily = "disbursement"
	SequenceOrder          SequenceFamily = "order"
)

var sequencePrefixes = map[SequenceFamily]string{
	SequenceFunding:        "FUND",
	SequencePaymentRequest: "PAY",
	SequencePayment:        "T",
	SequenceDisbursement:   "PC",
	SequenceOrder:          "CMD",
}

// IsValid reports whether the family is known.
func (f SequenceFamily) IsValid() bool {
	_, ok := sequencePrefixes[f]
	return ok
}

// Prefix returns the leading segment of references minted for the family.
func (f SequenceFamily) Prefix() string {
	return sequencePrefixes[f]
}

// Scoped reports whether references carry an extra scope segment after the prefix.
func (f SequenceFamily) Scoped() bool {
	return f == SequenceFunding
}

// SequenceFamilyForPrefix maps a reference prefix back to its family.
func SequenceFamilyForPrefix(prefix string) (SequenceFamily, error) {
	for family, candidate := range sequencePrefixes {
		if candidate == prefix {
			return family, nil
		}
	}
	return "", fmt.Errorf("unknown reference prefix %q", prefix)
}
