package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

// DateLayout is the wire format of date-only fields.
const DateLayout = "2006-01-02"

// MethodDetails is the closed set of per-mode payment fields. Exactly one
// payload pointer matching Mode may be set; cash carries none.
type MethodDetails struct {
	Mode        enums.PaymentMode   `json:"mode"`
	Cheque      *ChequeDetails      `json:"cheque,omitempty"`
	Transfer    *TransferDetails    `json:"transfer,omitempty"`
	MobileMoney *MobileMoneyDetails `json:"mobile_money,omitempty"`
	Julaya      *JulayaDetails      `json:"julaya,omitempty"`
}

// ChequeDetails identifies a paper cheque and its supporting proofs.
type ChequeDetails struct {
	Number    string   `json:"number"`
	Bank      string   `json:"bank"`
	Date      string   `json:"date"`
	Payee     string   `json:"payee"`
	ProofRefs []string `json:"proof_refs,omitempty"`
}

// TransferDetails identifies the bank account a transfer goes through.
type TransferDetails struct {
	Bank             string `json:"bank"`
	AccountReference string `json:"account_reference"`
}

// MobileMoneyDetails identifies a mobile money operator transaction.
type MobileMoneyDetails struct {
	Operator      string `json:"operator"`
	PhoneNumber   string `json:"phone_number"`
	TransactionID string `json:"transaction_id"`
}

// JulayaDetails identifies a Julaya wallet payment.
type JulayaDetails struct {
	Recipient            string `json:"recipient"`
	TransactionReference string `json:"transaction_reference"`
}

// CashDetails returns a cash method, which carries no payload.
func CashDetails() MethodDetails {
	return MethodDetails{Mode: enums.PaymentModeCash}
}

// ChequeMethod wraps cheque details in a MethodDetails.
func ChequeMethod(d ChequeDetails) MethodDetails {
	return MethodDetails{Mode: enums.PaymentModeCheque, Cheque: &d}
}

// TransferMethod wraps transfer details in a MethodDetails.
func TransferMethod(d TransferDetails) MethodDetails {
	return MethodDetails{Mode: enums.PaymentModeTransfer, Transfer: &d}
}

// MobileMoneyMethod wraps mobile money details in a MethodDetails.
func MobileMoneyMethod(d MobileMoneyDetails) MethodDetails {
	return MethodDetails{Mode: enums.PaymentModeMobileMoney, MobileMoney: &d}
}

// JulayaMethod wraps Julaya details in a MethodDetails.
func JulayaMethod(d JulayaDetails) MethodDetails {
	return MethodDetails{Mode: enums.PaymentModeJulaya, Julaya: &d}
}

// Validate enforces the payload required by the selected mode.
func (m MethodDetails) Validate() error {
	if !m.Mode.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment mode %q", m.Mode)
	}
	if got := m.payloadCount(); got > 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "only one payment method payload may be provided")
	}

	var missing []string
	switch m.Mode {
	case enums.PaymentModeCash:
		if m.payloadCount() != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cash payments carry no method details")
		}
		return nil
	case enums.PaymentModeCheque:
		if m.Cheque == nil {
			return missingPayload("cheque")
		}
		missing = required(
			field{"cheque.number", m.Cheque.Number},
			field{"cheque.bank", m.Cheque.Bank},
			field{"cheque.date", m.Cheque.Date},
			field{"cheque.payee", m.Cheque.Payee},
		)
		if len(missing) == 0 {
			if _, err := time.Parse(DateLayout, strings.TrimSpace(m.Cheque.Date)); err != nil {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "cheque.date must use %s", DateLayout)
			}
		}
	case enums.PaymentModeTransfer:
		if m.Transfer == nil {
			return missingPayload("transfer")
		}
		missing = required(
			field{"transfer.bank", m.Transfer.Bank},
			field{"transfer.account_reference", m.Transfer.AccountReference},
		)
	case enums.PaymentModeMobileMoney:
		if m.MobileMoney == nil {
			return missingPayload("mobile_money")
		}
		missing = required(
			field{"mobile_money.operator", m.MobileMoney.Operator},
			field{"mobile_money.phone_number", m.MobileMoney.PhoneNumber},
			field{"mobile_money.transaction_id", m.MobileMoney.TransactionID},
		)
	case enums.PaymentModeJulaya:
		if m.Julaya == nil {
			return missingPayload("julaya")
		}
		missing = required(
			field{"julaya.recipient", m.Julaya.Recipient},
			field{"julaya.transaction_reference", m.Julaya.TransactionReference},
		)
	}

	if len(missing) > 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "missing required fields: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"fields": missing})
	}
	if m.payloadFor() == nil {
		return missingPayload(string(m.Mode))
	}
	return nil
}

func (m MethodDetails) payloadCount() int {
	count := 0
	if m.Cheque != nil {
		count++
	}
	if m.Transfer != nil {
		count++
	}
	if m.MobileMoney != nil {
		count++
	}
	if m.Julaya != nil {
		count++
	}
	return count
}

func (m MethodDetails) payloadFor() any {
	switch m.Mode {
	case enums.PaymentModeCheque:
		return m.Cheque
	case enums.PaymentModeTransfer:
		return m.Transfer
	case enums.PaymentModeMobileMoney:
		return m.MobileMoney
	case enums.PaymentModeJulaya:
		return m.Julaya
	}
	return nil
}

type field struct {
	name  string
	value string
}

func required(fields ...field) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func missingPayload(kind string) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "%s details are required", kind)
}

// Value stores the variant as jsonb.
func (m MethodDetails) Value() (driver.Value, error) {
	if m.Mode == "" {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan decodes the jsonb column.
func (m *MethodDetails) Scan(value any) error {
	if value == nil {
		*m = MethodDetails{}
		return nil
	}
	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("method details: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*m = MethodDetails{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

func toBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
