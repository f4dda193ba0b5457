package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
)

const defaultStaleDrawerAfter = 18 * time.Hour

type openSessionReader interface {
	FindOpen(ctx context.Context) (*models.CashDrawerSession, error)
}

type StaleDrawerJobParams struct {
	Logger   *logger.Logger
	Sessions openSessionReader
	Metrics  *metrics.SettlementMetrics
	After    time.Duration
}

// NewStaleDrawerJob reports the open drawer session's age and warns once it
// has been open longer than After, which usually means a shift ended
// without a close.
func NewStaleDrawerJob(params StaleDrawerJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session reader required")
	}
	after := params.After
	if after <= 0 {
		after = defaultStaleDrawerAfter
	}
	return &staleDrawerJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		metrics:  params.Metrics,
		after:    after,
		now:      time.Now,
	}, nil
}

type staleDrawerJob struct {
	logg     *logger.Logger
	sessions openSessionReader
	metrics  *metrics.SettlementMetrics
	after    time.Duration
	now      func() time.Time
}

func (j *staleDrawerJob) Name() string { return "stale-drawer" }

func (j *staleDrawerJob) Run(ctx context.Context) error {
	session, err := j.sessions.FindOpen(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		j.metrics.SetDrawerOpenAge(0)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find open drawer session: %w", err)
	}

	age := j.now().UTC().Sub(session.OpenedAt.UTC())
	if age < 0 {
		age = 0
	}
	j.metrics.SetDrawerOpenAge(age)
	if age < j.after {
		return nil
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"session_id": session.ID.String(),
		"opened_by":  session.OpenedBy.String(),
		"opened_at":  session.OpenedAt,
		"open_hours": int(age.Hours()),
	}), "cash_drawer.session_stale")
	return nil
}
