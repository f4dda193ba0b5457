// Package cashdrawer runs the till lifecycle: one open session at a time,
// counted out at close against the cash tendered on settled orders, then
// reconciled once against the card terminal's batch totals.
package cashdrawer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
	"github.com/angelmondragon/settlez-backend/pkg/money"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
	"github.com/angelmondragon/settlez-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages drawer sessions.
type Service interface {
	OpenDrawer(ctx context.Context, input OpenInput) (*models.CashDrawerSession, error)
	CloseDrawer(ctx context.Context, input CloseInput) (*models.CashDrawerSession, error)
	Reconcile(ctx context.Context, input ReconcileInput) (*models.TerminalReconciliation, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (*Summary, error)
	Current(ctx context.Context) (*models.CashDrawerSession, error)
	List(ctx context.Context, params pagination.Params) (*SessionList, error)
	OpenSessionID(ctx context.Context, tx *gorm.DB) (*uuid.UUID, error)
}

// SessionList is one page of sessions, newest first. Cursor is empty on the
// last page.
type SessionList struct {
	Sessions []models.CashDrawerSession
	Cursor   string
}

// OpenInput starts a session with the float counted into the till.
type OpenInput struct {
	ActorID uuid.UUID
	Counts  types.DenominationCounts
	Notes   *string
}

// CloseInput counts a session out.
type CloseInput struct {
	SessionID uuid.UUID
	ActorID   uuid.UUID
	Counts    types.DenominationCounts
	Notes     *string
}

// ReconcileInput carries the terminal's reported batch totals in cents.
type ReconcileInput struct {
	SessionID         uuid.UUID
	ActorID           uuid.UUID
	DebitActualCents  int64
	CreditActualCents int64
	Notes             *string
}

// Summary is the end-of-day view of one session.
type Summary struct {
	Session              *models.CashDrawerSession
	CashSalesCents       int64
	DebitSalesCents      int64
	CreditSalesCents     int64
	ExpectedClosingCents int64
	DiscrepancyCents     *int64
	Reconciliation       *models.TerminalReconciliation
	DayComplete          bool
}

// ServiceParams wires the drawer service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Metrics *metrics.SettlementMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds a drawer service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cash drawer repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
		now:     now,
	}, nil
}

// tenderTotals are settled tender sums for one session, in cents.
type tenderTotals struct {
	cash   int64
	debit  int64
	credit int64
}

func (s *service) OpenDrawer(ctx context.Context, input OpenInput) (*models.CashDrawerSession, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}

	var session *models.CashDrawerSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindOpen(ctx)
		switch {
		case err == nil:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a cash drawer session is already open").
				WithDetails(map[string]any{"session_id": existing.ID})
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open drawer")
		}

		now := s.now()
		session = &models.CashDrawerSession{
			ID:                uuid.New(),
			Status:            enums.CashDrawerStatusOpen,
			OpenedBy:          input.ActorID,
			OpeningCounts:     cloneCounts(input.Counts),
			OpeningTotalCents: CalculateTotalCents(input.Counts),
			Notes:             cleanNotes(input.Notes),
			OpenedAt:          now,
		}
		if err := repo.Create(ctx, session); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "another cash drawer session was opened concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open drawer")
		}
		return s.emit(ctx, tx, enums.EventCashDrawerOpened, session.ID, input.ActorID, now, payloads.CashDrawerOpenedEvent{
			SessionID:         session.ID,
			OpenedBy:          input.ActorID,
			OpeningTotalCents: session.OpeningTotalCents,
			OpenedAt:          now,
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id":          session.ID.String(),
		"opening_total_cents": session.OpeningTotalCents,
	})
	s.logg.Info(ctx, "cash_drawer.opened")
	return session, nil
}

// CloseDrawer records the closing count and freezes expected closing and
// discrepancy on the session.
func (s *service) CloseDrawer(ctx context.Context, input CloseInput) (*models.CashDrawerSession, error) {
	if input.SessionID == uuid.Nil {
		return nil, pkgerrors.Validation("session_id", "session id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.Validation("closed_by", "closer is required")
	}

	var session *models.CashDrawerSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		session, err = repo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			return lookupError(err, "lock drawer session")
		}
		if session.Status != enums.CashDrawerStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cash drawer session is already closed")
		}

		sums, err := s.tenderTotals(ctx, repo, session.ID)
		if err != nil {
			return err
		}

		now := s.now()
		closing := CalculateTotalCents(input.Counts)
		expected := session.OpeningTotalCents + sums.cash
		discrepancy := closing - expected
		closer := input.ActorID

		session.Status = enums.CashDrawerStatusClosed
		session.ClosedBy = &closer
		session.ClosingCounts = cloneCounts(input.Counts)
		session.ClosingTotalCents = &closing
		session.ExpectedClosingCents = &expected
		session.DiscrepancyCents = &discrepancy
		session.ClosedAt = &now
		if notes := cleanNotes(input.Notes); notes != nil {
			session.Notes = notes
		}

		if err := repo.Close(ctx, session); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeConcurrency, "cash drawer session was closed concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close drawer")
		}
		return s.emit(ctx, tx, enums.EventCashDrawerClosed, session.ID, closer, now, payloads.CashDrawerClosedEvent{
			SessionID:            session.ID,
			ClosedBy:             closer,
			OpeningTotalCents:    session.OpeningTotalCents,
			ClosingTotalCents:    closing,
			ExpectedClosingCents: expected,
			DiscrepancyCents:     discrepancy,
			ClosedAt:             now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDrawerDiscrepancy(*session.DiscrepancyCents)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id":        session.ID.String(),
		"expected_cents":    *session.ExpectedClosingCents,
		"closing_cents":     *session.ClosingTotalCents,
		"discrepancy_cents": *session.DiscrepancyCents,
	})
	s.logg.Info(ctx, "cash_drawer.closed")
	return session, nil
}

// Reconcile records the terminal totals for a closed session. A session is
// reconciled at most once.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*models.TerminalReconciliation, error) {
	if input.SessionID == uuid.Nil {
		return nil, pkgerrors.Validation("session_id", "session id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}
	if input.DebitActualCents < 0 {
		return nil, pkgerrors.Validation("debit_actual_cents", "debit total cannot be negative")
	}
	if input.CreditActualCents < 0 {
		return nil, pkgerrors.Validation("credit_actual_cents", "credit total cannot be negative")
	}

	var rec *models.TerminalReconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		session, err := repo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			return lookupError(err, "lock drawer session")
		}
		if session.Status != enums.CashDrawerStatusClosed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cash drawer session must be closed before reconciliation")
		}
		if session.Reconciliation != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cash drawer session is already reconciled").
				WithDetails(map[string]any{"reconciliation_id": session.Reconciliation.ID})
		}

		sums, err := s.tenderTotals(ctx, repo, session.ID)
		if err != nil {
			return err
		}

		rec = &models.TerminalReconciliation{
			ID:                     uuid.New(),
			SessionID:              session.ID,
			ReconciledBy:           input.ActorID,
			DebitExpectedCents:     sums.debit,
			DebitActualCents:       input.DebitActualCents,
			DebitDiscrepancyCents:  input.DebitActualCents - sums.debit,
			CreditExpectedCents:    sums.credit,
			CreditActualCents:      input.CreditActualCents,
			CreditDiscrepancyCents: input.CreditActualCents - sums.credit,
			Notes:                  cleanNotes(input.Notes),
		}
		if err := repo.CreateReconciliation(ctx, rec); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "cash drawer session was reconciled concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reconciliation")
		}
		return s.emit(ctx, tx, enums.EventTerminalReconciled, session.ID, input.ActorID, s.now(), payloads.TerminalReconciledEvent{
			SessionID:              session.ID,
			ReconciliationID:       rec.ID,
			DebitDiscrepancyCents:  rec.DebitDiscrepancyCents,
			CreditDiscrepancyCents: rec.CreditDiscrepancyCents,
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id":               rec.SessionID.String(),
		"debit_discrepancy_cents":  rec.DebitDiscrepancyCents,
		"credit_discrepancy_cents": rec.CreditDiscrepancyCents,
	})
	s.logg.Info(ctx, "cash_drawer.reconciled")
	return rec, nil
}

// Summary reports expected closing for any session. Discrepancy stays nil
// while the session is open.
func (s *service) Summary(ctx context.Context, sessionID uuid.UUID) (*Summary, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.Validation("session_id", "session id is required")
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, lookupError(err, "load drawer session")
	}
	sums, err := s.tenderTotals(ctx, s.repo, session.ID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Session:              session,
		CashSalesCents:       sums.cash,
		DebitSalesCents:      sums.debit,
		CreditSalesCents:     sums.credit,
		ExpectedClosingCents: session.OpeningTotalCents + sums.cash,
		Reconciliation:       session.Reconciliation,
	}
	if session.Status == enums.CashDrawerStatusClosed {
		if session.ExpectedClosingCents != nil {
			summary.ExpectedClosingCents = *session.ExpectedClosingCents
		}
		summary.DiscrepancyCents = session.DiscrepancyCents
		summary.DayComplete = session.Reconciliation != nil
	}
	return summary, nil
}

func (s *service) Current(ctx context.Context) (*models.CashDrawerSession, error) {
	session, err := s.repo.FindOpen(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no cash drawer session is open")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open drawer")
	}
	return session, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*SessionList, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	sessions, next, err := s.repo.List(ctx, params.Limit, after)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list drawer sessions")
	}
	list := &SessionList{Sessions: sessions}
	if next != nil {
		list.Cursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// OpenSessionID returns the open session's id, or nil when the till is closed.
func (s *service) OpenSessionID(ctx context.Context, tx *gorm.DB) (*uuid.UUID, error) {
	session, err := s.repo.WithTx(tx).FindOpen(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open drawer")
	}
	return &session.ID, nil
}

func (s *service) tenderTotals(ctx context.Context, repo Repository, sessionID uuid.UUID) (tenderTotals, error) {
	payments, err := repo.SettledPayments(ctx, sessionID)
	if err != nil {
		return tenderTotals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum session tenders")
	}
	var sums tenderTotals
	for _, p := range payments {
		cents := money.ToCents(p.Amount)
		switch p.Method {
		case enums.PaymentMethodCash:
			sums.cash += cents
		case enums.PaymentMethodDebit:
			sums.debit += cents
		case enums.PaymentMethodCredit:
			sums.credit += cents
		}
	}
	return sums, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, sessionID, actor uuid.UUID, at time.Time, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateCashDrawerSession,
		AggregateID:   sessionID,
		Actor:         outbox.Actor(actor),
		Version:       1,
		OccurredAt:    at,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("emit %s event", event))
	}
	return nil
}

func cloneCounts(counts types.DenominationCounts) types.DenominationCounts {
	out := make(types.DenominationCounts, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func cleanNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func lookupError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cash drawer session not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
