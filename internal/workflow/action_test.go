package workflow

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

func cashDetails() *types.MethodDetails {
	d := types.CashDetails()
	return &d
}

func TestActionValidate(t *testing.T) {
	cases := []struct {
		name   string
		action Action
		ok     bool
	}{
		{
			name:   "approve funding",
			action: Action{Version: 1, Type: enums.ActionApprove, TargetID: "FUND/CP/2026/10/0001", Actor: "daf"},
			ok:     true,
		},
		{
			name:   "missing version",
			action: Action{Type: enums.ActionApprove, TargetID: "FUND/CP/2026/10/0001", Actor: "daf"},
		},
		{
			name:   "future version",
			action: Action{Version: 2, Type: enums.ActionApprove, TargetID: "FUND/CP/2026/10/0001", Actor: "daf"},
		},
		{
			name:   "unknown type",
			action: Action{Version: 1, Type: "escalate", TargetID: "FUND/CP/2026/10/0001", Actor: "daf"},
		},
		{
			name:   "missing actor",
			action: Action{Version: 1, Type: enums.ActionApprove, TargetID: "FUND/CP/2026/10/0001"},
		},
		{
			name:   "approve on order",
			action: Action{Version: 1, Type: enums.ActionApprove, TargetID: "CMD/2026/10/0001", Actor: "daf"},
		},
		{
			name:   "reject without reason",
			action: Action{Version: 1, Type: enums.ActionReject, TargetID: "FUND/CP/2026/10/0001", Actor: "daf"},
		},
		{
			name:   "report problem without problem",
			action: Action{Version: 1, Type: enums.ActionReportProblem, TargetID: "FUND/CP/2026/10/0001", Actor: "daf"},
		},
		{
			name: "report problem missing description",
			action: Action{Version: 1, Type: enums.ActionReportProblem, TargetID: "FUND/CP/2026/10/0001", Actor: "daf",
				Problem: &Problem{Type: "cheque"}},
		},
		{
			name: "submit cheque details missing payee",
			action: Action{Version: 1, Type: enums.ActionSubmitDetails, TargetID: "FUND/CP/2026/10/0001", Actor: "awa",
				Details: &types.MethodDetails{Mode: enums.PaymentModeCheque, Cheque: &types.ChequeDetails{Number: "1", Bank: "B", Date: "2026-10-19"}}},
		},
		{
			name: "record payment on payment request",
			action: Action{Version: 1, Type: enums.ActionRecordPayment, TargetID: "PAY/2026/10/0003", Actor: "caissier",
				Details: cashDetails(), Payment: &PaymentContext{Amount: decimal.NewFromInt(500)}},
			ok: true,
		},
		{
			name: "record payment without amount",
			action: Action{Version: 1, Type: enums.ActionRecordPayment, TargetID: "PAY/2026/10/0003", Actor: "caissier",
				Details: cashDetails(), Payment: &PaymentContext{}},
		},
		{
			name: "record payment on funding request",
			action: Action{Version: 1, Type: enums.ActionRecordPayment, TargetID: "FUND/CP/2026/10/0001", Actor: "caissier",
				Details: cashDetails(), Payment: &PaymentContext{Amount: decimal.NewFromInt(500)}},
		},
		{
			name: "modify payment",
			action: Action{Version: 1, Type: enums.ActionModifyPayment, TargetID: "T/2026/10/0007", Actor: "daf",
				Details: cashDetails(), Payment: &PaymentContext{Amount: decimal.NewFromInt(500)}},
			ok: true,
		},
		{
			name:   "malformed target",
			action: Action{Version: 1, Type: enums.ActionApprove, TargetID: "FUND-0001", Actor: "daf"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid action, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected validation error")
				}
				if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
					t.Fatalf("expected validation code, got %v", err)
				}
			}
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	if _, err := Decode([]byte(`{"version":1,"type":"approve","target_id":"FUND/CP/2026/10/0001","actor":"daf","step":3}`)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	action, err := Decode([]byte(`{"version":1,"type":"reject","target_id":"FUND/CP/2026/10/0001","actor":"daf","reason":"doublon"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if action.Reason != "doublon" {
		t.Fatalf("unexpected reason %q", action.Reason)
	}
}
