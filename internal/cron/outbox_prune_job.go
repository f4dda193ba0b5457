package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultOutboxMaxAttempts   = 10
)

type outboxPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (published, terminal int64, err error)
}

type OutboxPruneJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPruner
	RetentionDays int
	// MaxAttempts matches the publisher's terminal attempt count.
	MaxAttempts int
}

// NewOutboxPruneJob deletes settlement events that were published, or parked
// in the DLQ, more than RetentionDays ago.
func NewOutboxPruneJob(params OutboxPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultOutboxRetentionDays
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultOutboxMaxAttempts
	}
	return &outboxPruneJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   retention,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type outboxPruneJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPruner
	retention   int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var published, terminal int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		published, terminal, err = j.repo.PruneBefore(ctx, tx, cutoff, j.maxAttempts)
		return err
	})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"retention_days":   j.retention,
		"published_pruned": published,
		"terminal_pruned":  terminal,
	}), "outbox.pruned")
	return nil
}
