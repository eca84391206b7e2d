package textparse

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

const defaultTimeout = 5 * time.Second

// Draft is the structured funding request extracted from free text. It is a
// proposal only; the funding workflow validates it again on submission.
// Fields the text does not state are left zero.
type Draft struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency enums.Currency  `json:"currency"`
	Reason   string          `json:"reason"`
	Date     time.Time       `json:"requested_date"`
}

// FieldProblem names a field that could not be extracted.
type FieldProblem struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

var (
	numericDate = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)
	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	relativeDay = regexp.MustCompile(`(?i)\b(aujourd'hui|today|demain|tomorrow)\b`)
	amountExpr  = regexp.MustCompile(`(?i)(\d{1,3}(?:[ .\x{00A0}\x{202F}]\d{3})+|\d+)(?:[,.](\d{1,2}))?(?:\s*(k)\b)?(?:\s*(fcfa|cfa|xof|usd|dollars?|euros?|eur|€|\$))?`)
	currencyTag = regexp.MustCompile(`(?i)(fcfa|\bcfa\b|\bxof\b|\busd\b|\bdollars?\b|\beuros?\b|\beur\b|€|\$)`)
	reasonExpr  = regexp.MustCompile(`(?i)(?:\bpour\b|\bmotif\s*:|\bobjet\s*:|\braison\s*:|\bfor\b)\s*(.+)`)
	trailingArg = regexp.MustCompile(`(?i)[\s,;:.]+(le|du|au|on|en date du|date)?\s*$`)
	groupSep    = strings.NewReplacer(" ", "", ".", "", "\u00a0", "", "\u202f", "")
)

// Parser extracts funding drafts from messages written by requesters.
type Parser struct {
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	logg    *logger.Logger
	rules   func(string) (Draft, error)
}

// Options configures a Parser.
type Options struct {
	Timeout  time.Duration
	Location *time.Location
	Logger   *logger.Logger
	Now      func() time.Time
}

// New builds a Parser.
func New(opts Options) *Parser {
	p := &Parser{
		timeout: opts.Timeout,
		loc:     opts.Location,
		now:     opts.Now,
		logg:    opts.Logger,
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logg == nil {
		p.logg = logger.Nop()
	}
	p.rules = p.parse
	return p
}

type parseResult struct {
	draft Draft
	err   error
}

// ParseFundingText extracts amount, currency, reason and requested date from
// text. Missing or malformed fields are reported as a validation error listing
// every problem; a parse that outlives the configured timeout fails with
// TIMEOUT.
func (p *Parser) ParseFundingText(ctx context.Context, text string) (Draft, error) {
	if strings.TrimSpace(text) == "" {
		return Draft{}, pkgerrors.New(pkgerrors.CodeValidation, "text is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan parseResult, 1)
	go func() {
		draft, err := p.rules(text)
		done <- parseResult{draft: draft, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", res.err.Error()), "funding text rejected")
		}
		return res.draft, res.err
	case <-ctx.Done():
		p.logg.Warn(ctx, "funding text parse timed out")
		return Draft{}, pkgerrors.Wrap(pkgerrors.CodeTimeout, ctx.Err(), "funding text parse timed out")
	}
}

func (p *Parser) parse(text string) (Draft, error) {
	var problems []FieldProblem
	var draft Draft

	date, rest, dateProblem := p.extractDate(text)
	if dateProblem != nil {
		problems = append(problems, *dateProblem)
	}
	draft.Date = date

	amountText, amount, cur, ok := extractAmount(rest)
	switch {
	case !ok:
		problems = append(problems, FieldProblem{Field: "amount", Reason: "no amount found"})
	case !amount.IsPositive():
		problems = append(problems, FieldProblem{Field: "amount", Reason: "amount must be greater than zero"})
	default:
		draft.Amount = amount
	}
	if cur == "" {
		if tag := currencyTag.FindString(rest); tag != "" {
			cur = currencyFor(tag)
		}
	}
	if cur == "" {
		problems = append(problems, FieldProblem{Field: "currency", Reason: "no currency found"})
	}
	draft.Currency = cur

	reason := extractReason(strings.Replace(rest, amountText, " ", 1))
	if reason == "" {
		problems = append(problems, FieldProblem{Field: "reason", Reason: "no reason found"})
	}
	draft.Reason = reason

	if len(problems) > 0 {
		fields := make([]string, 0, len(problems))
		for _, pr := range problems {
			fields = append(fields, pr.Field)
		}
		return draft, pkgerrors.Newf(pkgerrors.CodeValidation, "could not extract %s", strings.Join(fields, ", ")).
			WithDetails(problems)
	}
	return draft, nil
}

// extractDate returns the requested date and the text with the date phrase
// removed. Relative words resolve against today in the business time zone.
func (p *Parser) extractDate(text string) (time.Time, string, *FieldProblem) {
	today := p.now().In(p.loc)
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	if m := isoDate.FindStringSubmatchIndex(text); m != nil {
		y, mo, d := atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]])
		return dateOrProblem(y, mo, d, cut(text, m[0], m[1]))
	}
	if m := numericDate.FindStringSubmatchIndex(text); m != nil {
		d, mo, y := atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]])
		return dateOrProblem(y, mo, d, cut(text, m[0], m[1]))
	}
	if m := relativeDay.FindStringSubmatchIndex(text); m != nil {
		word := strings.ToLower(text[m[2]:m[3]])
		if word == "demain" || word == "tomorrow" {
			return today.AddDate(0, 0, 1), cut(text, m[0], m[1]), nil
		}
		return today, cut(text, m[0], m[1]), nil
	}
	return time.Time{}, text, &FieldProblem{Field: "date", Reason: "no date found"}
}

func dateOrProblem(y, mo, d int, rest string) (time.Time, string, *FieldProblem) {
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, rest, &FieldProblem{Field: "date", Reason: "not a calendar date"}
	}
	return t, rest, nil
}

func extractAmount(text string) (string, decimal.Decimal, enums.Currency, bool) {
	matches := amountExpr.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", decimal.Zero, "", false
	}
	pick := matches[0]
	for _, m := range matches {
		if m[4] != "" {
			pick = m
			break
		}
	}
	raw := groupSep.Replace(pick[1])
	if pick[2] != "" {
		raw += "." + pick[2]
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return pick[0], decimal.Zero, "", false
	}
	if pick[3] != "" {
		amount = amount.Mul(decimal.NewFromInt(1000))
	}
	var cur enums.Currency
	if pick[4] != "" {
		cur = currencyFor(pick[4])
	}
	return pick[0], amount, cur, true
}

func currencyFor(tag string) enums.Currency {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "usd", "dollar", "dollars", "$":
		return enums.CurrencyUSD
	case "eur", "euro", "euros", "€":
		return enums.CurrencyEUR
	default:
		return enums.CurrencyXOF
	}
}

func extractReason(text string) string {
	m := reasonExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	reason := strings.Join(strings.Fields(m[1]), " ")
	for {
		trimmed := strings.TrimSpace(trailingArg.ReplaceAllString(reason, ""))
		if trimmed == reason {
			break
		}
		reason = trimmed
	}
	return reason
}

func cut(text string, start, end int) string {
	return text[:start] + " " + text[end:]
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
