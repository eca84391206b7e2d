package models

import (
	"time"

	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// SequenceCounter is the last number handed out for a (family, scope, period) key.
type SequenceCounter struct {
	Family    enums.SequenceFamily `gorm:"column:family;primaryKey"`
	Scope     string               `gorm:"column:scope;primaryKey"`
	Period    string               `gorm:"column:period;primaryKey"`
	Seq       int64                `gorm:"column:seq;not null"`
	UpdatedAt time.Time            `gorm:"column:updated_at"`
}

func (SequenceCounter) TableName() string { return "sequence_counters" }
