package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

var scopePattern = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)

// Reference is a parsed reference number such as FUND/CP/2026/10/0001 or T/2026/10/0042.
type Reference struct {
	Family enums.SequenceFamily
	Scope  string
	Year   int
	Month  time.Month
	Seq    int64
}

// String renders the reference in its canonical form.
func (r Reference) String() string {
	if r.Family.Scoped() {
		return fmt.Sprintf("%s/%s/%04d/%02d/%04d", r.Family.Prefix(), r.Scope, r.Year, int(r.Month), r.Seq)
	}
	return fmt.Sprintf("%s/%04d/%02d/%04d", r.Family.Prefix(), r.Year, int(r.Month), r.Seq)
}

// Period returns the counter period key (YYYYMM) of the reference.
func (r Reference) Period() string {
	return fmt.Sprintf("%04d%02d", r.Year, int(r.Month))
}

// Period returns the counter period key for the given instant.
func Period(at time.Time) string {
	return at.Format("200601")
}

// Format builds the reference string for a minted sequence value.
func Format(family enums.SequenceFamily, scope string, at time.Time, seq int64) (string, error) {
	if err := validateKey(family, scope); err != nil {
		return "", err
	}
	if seq <= 0 {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "sequence must be positive, got %d", seq)
	}
	return Reference{
		Family: family,
		Scope:  scope,
		Year:   at.Year(),
		Month:  at.Month(),
		Seq:    seq,
	}.String(), nil
}

// Parse is the inverse of Format.
func Parse(value string) (Reference, error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) < 4 {
		return Reference{}, invalidReference(value)
	}

	family, err := enums.SequenceFamilyForPrefix(parts[0])
	if err != nil {
		return Reference{}, invalidReference(value)
	}

	ref := Reference{Family: family}
	rest := parts[1:]
	if family.Scoped() {
		if len(parts) != 5 || !scopePattern.MatchString(parts[1]) {
			return Reference{}, invalidReference(value)
		}
		ref.Scope = parts[1]
		rest = parts[2:]
	} else if len(parts) != 4 {
		return Reference{}, invalidReference(value)
	}

	if len(rest[0]) != 4 || len(rest[1]) != 2 || len(rest[2]) < 4 {
		return Reference{}, invalidReference(value)
	}
	year, err := strconv.Atoi(rest[0])
	if err != nil {
		return Reference{}, invalidReference(value)
	}
	month, err := strconv.Atoi(rest[1])
	if err != nil || month < 1 || month > 12 {
		return Reference{}, invalidReference(value)
	}
	seq, err := strconv.ParseInt(rest[2], 10, 64)
	if err != nil || seq <= 0 {
		return Reference{}, invalidReference(value)
	}

	ref.Year = year
	ref.Month = time.Month(month)
	ref.Seq = seq
	return ref, nil
}

func validateKey(family enums.SequenceFamily, scope string) error {
	if !family.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown sequence family %q", family)
	}
	if family.Scoped() {
		if !scopePattern.MatchString(scope) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid scope %q for %s references", scope, family)
		}
		return nil
	}
	if scope != "" {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s references are not scoped", family)
	}
	return nil
}

func invalidReference(value string) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid reference %q", value)
}
