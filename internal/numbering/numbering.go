// Package numbering issues human-readable sequential document numbers such
// as ORD-000123 and REF-000045.
package numbering

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

// Kind names a numbered document series.
type Kind string

const (
	KindOrder  Kind = "orders"
	KindRefund Kind = "refunds"
)

// Sequencer hands out monotonically increasing counters outside the database.
type Sequencer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

// Generator formats the next number in a series.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, kind Kind) (string, error)
}

type generator struct {
	seq      Sequencer
	prefixes map[Kind]string
	width    int
}

// NewGenerator returns a generator backed by seq when non-nil and by the
// document_sequences table otherwise.
func NewGenerator(seq Sequencer, cfg config.SettlementConfig) Generator {
	width := cfg.NumberWidth
	if width <= 0 {
		width = 6
	}
	return &generator{
		seq: seq,
		prefixes: map[Kind]string{
			KindOrder:  orDefault(cfg.OrderPrefix, "ORD"),
			KindRefund: orDefault(cfg.RefundPrefix, "REF"),
		},
		width: width,
	}
}

func (g *generator) Next(ctx context.Context, tx *gorm.DB, kind Kind) (string, error) {
	prefix, ok := g.prefixes[kind]
	if !ok {
		return "", pkgerrors.Newf(pkgerrors.CodeInternal, "unknown document series %q", kind)
	}

	var (
		n   int64
		err error
	)
	if g.seq != nil {
		n, err = g.seq.NextSequence(ctx, string(kind))
	} else {
		n, err = nextFromTable(ctx, tx, kind)
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate document number")
	}
	return Format(prefix, g.width, n), nil
}

// Format renders prefix-NNNNNN.
func Format(prefix string, width int, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, width, n)
}

func nextFromTable(ctx context.Context, tx *gorm.DB, kind Kind) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction required for table sequence")
	}
	row := models.DocumentSequence{Name: string(kind), Value: 1}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("document_sequences.value + 1")}),
		}).
		Create(&row).Error; err != nil {
		return 0, err
	}

	var current models.DocumentSequence
	if err := tx.WithContext(ctx).Where("name = ?", string(kind)).First(&current).Error; err != nil {
		return 0, err
	}
	return current.Value, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
