package sequence

import (
	"testing"
	"time"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

func TestFormat(t *testing.T) {
	at := time.Date(2026, time.October, 5, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		family enums.SequenceFamily
		scope  string
		seq    int64
		want   string
	}{
		{enums.SequenceFunding, "CP", 1, "FUND/CP/2026/10/0001"},
		{enums.SequencePaymentRequest, "", 42, "PAY/2026/10/0042"},
		{enums.SequencePayment, "", 7, "T/2026/10/0007"},
		{enums.SequenceDisbursement, "", 12345, "PC/2026/10/12345"},
		{enums.SequenceOrder, "", 3, "CMD/2026/10/0003"},
	}
	for _, tc := range cases {
		got, err := Format(tc.family, tc.scope, at, tc.seq)
		if err != nil {
			t.Fatalf("format %s: %v", tc.family, err)
		}
		if got != tc.want {
			t.Fatalf("format %s: expected %s, got %s", tc.family, tc.want, got)
		}
	}
}

func TestFormatRejectsBadKeys(t *testing.T) {
	at := time.Now()
	if _, err := Format(enums.SequenceFunding, "", at, 1); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing scope, got %v", err)
	}
	if _, err := Format(enums.SequenceOrder, "CP", at, 1); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unexpected scope, got %v", err)
	}
	if _, err := Format("bogus", "", at, 1); err == nil {
		t.Fatalf("expected error for unknown family")
	}
	if _, err := Format(enums.SequenceOrder, "", at, 0); err == nil {
		t.Fatalf("expected error for zero sequence")
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, value := range []string{
		"FUND/CP/2026/10/0001",
		"PAY/2026/01/0042",
		"T/2026/12/9999",
		"PC/2027/02/10000",
		"CMD/2026/10/0003",
	} {
		ref, err := Parse(value)
		if err != nil {
			t.Fatalf("parse %s: %v", value, err)
		}
		if ref.String() != value {
			t.Fatalf("round trip: expected %s, got %s", value, ref.String())
		}
	}

	ref, err := Parse("FUND/CP/2026/10/0012")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.Family != enums.SequenceFunding || ref.Scope != "CP" || ref.Seq != 12 || ref.Period() != "202610" {
		t.Fatalf("unexpected reference %+v", ref)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, value := range []string{
		"",
		"FUND/2026/10/0001",
		"FUND/cp/2026/10/0001",
		"CMD/CP/2026/10/0001",
		"CMD/2026/13/0001",
		"CMD/2026/1/0001",
		"CMD/26/10/0001",
		"CMD/2026/10/01",
		"CMD/2026/10/0000",
		"XYZ/2026/10/0001",
	} {
		if _, err := Parse(value); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %q, got %v", value, err)
		}
	}
}
