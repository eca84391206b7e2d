package sequence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
)

// Minter hands out reference numbers. Services depend on this rather than on *Generator.
type Minter interface {
	Mint(ctx context.Context, family enums.SequenceFamily, scope string, at time.Time) (string, error)
}

// Generator allocates strictly increasing numbers per (family, scope, period).
type Generator struct {
	db      *gorm.DB
	loc     *time.Location
	metrics *metrics.WorkflowMetrics
}

const nextSQL = `INSERT INTO sequence_counters (family, scope, period, seq, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (family, scope, period)
DO UPDATE SET seq = sequence_counters.seq + 1, updated_at = excluded.updated_at
RETURNING seq`

// NewGenerator binds a generator to db. Periods are computed in loc (UTC when nil).
func NewGenerator(db *gorm.DB, loc *time.Location, m *metrics.WorkflowMetrics) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{db: db, loc: loc, metrics: m}
}

// WithTx returns a generator whose increments commit or roll back with tx.
func (g *Generator) WithTx(tx *gorm.DB) *Generator {
	if tx == nil {
		return g
	}
	return &Generator{db: tx, loc: g.loc, metrics: g.metrics}
}

// Next increments the counter and returns the new value. The first call for a key returns 1.
func (g *Generator) Next(ctx context.Context, family enums.SequenceFamily, scope, period string) (int64, error) {
	if err := validateKey(family, scope); err != nil {
		return 0, err
	}
	if len(period) != 6 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid sequence period %q", period)
	}

	var seq int64
	row := g.db.WithContext(ctx).Raw(nextSQL, family, scope, period, time.Now().UTC()).Row()
	if err := row.Scan(&seq); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("allocate %s sequence", family))
	}
	g.metrics.IncSequence(string(family))
	return seq, nil
}

// Mint allocates the next number for the period containing at and formats it.
func (g *Generator) Mint(ctx context.Context, family enums.SequenceFamily, scope string, at time.Time) (string, error) {
	local := at.In(g.loc)
	seq, err := g.Next(ctx, family, scope, Period(local))
	if err != nil {
		return "", err
	}
	return Format(family, scope, local, seq)
}
