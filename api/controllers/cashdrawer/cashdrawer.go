package cashdrawer

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlez-backend/api/middleware"
	"github.com/angelmondragon/settlez-backend/api/responses"
	"github.com/angelmondragon/settlez-backend/api/validators"
	internalcashdrawer "github.com/angelmondragon/settlez-backend/internal/cashdrawer"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/types"
)

type countRequest struct {
	Counts types.DenominationCounts `json:"counts"`
	Notes  *string                  `json:"notes" validate:"omitempty,max=1000"`
}

type reconcileRequest struct {
	DebitActualCents  int64   `json:"debit_actual_cents" validate:"gte=0"`
	CreditActualCents int64   `json:"credit_actual_cents" validate:"gte=0"`
	Notes             *string `json:"notes" validate:"omitempty,max=1000"`
}

// SessionView is the wire shape of a drawer session. Amounts are cents.
type SessionView struct {
	ID                   uuid.UUID                `json:"id"`
	Status               enums.CashDrawerStatus   `json:"status"`
	OpenedBy             uuid.UUID                `json:"opened_by"`
	ClosedBy             *uuid.UUID               `json:"closed_by,omitempty"`
	OpeningCounts        types.DenominationCounts `json:"opening_counts"`
	OpeningTotalCents    int64                    `json:"opening_total_cents"`
	ClosingCounts        types.DenominationCounts `json:"closing_counts,omitempty"`
	ClosingTotalCents    *int64                   `json:"closing_total_cents,omitempty"`
	ExpectedClosingCents *int64                   `json:"expected_closing_cents,omitempty"`
	DiscrepancyCents     *int64                   `json:"discrepancy_cents,omitempty"`
	Notes                *string                  `json:"notes,omitempty"`
	OpenedAt             time.Time                `json:"opened_at"`
	ClosedAt             *time.Time               `json:"closed_at,omitempty"`
}

type ReconciliationView struct {
	ID                     uuid.UUID `json:"id"`
	SessionID              uuid.UUID `json:"session_id"`
	ReconciledBy           uuid.UUID `json:"reconciled_by"`
	DebitExpectedCents     int64     `json:"debit_expected_cents"`
	DebitActualCents       int64     `json:"debit_actual_cents"`
	DebitDiscrepancyCents  int64     `json:"debit_discrepancy_cents"`
	CreditExpectedCents    int64     `json:"credit_expected_cents"`
	CreditActualCents      int64     `json:"credit_actual_cents"`
	CreditDiscrepancyCents int64     `json:"credit_discrepancy_cents"`
	Notes                  *string   `json:"notes,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// SummaryView is the end-of-day report for one session.
type SummaryView struct {
	Session              SessionView         `json:"session"`
	CashSalesCents       int64               `json:"cash_sales_cents"`
	DebitSalesCents      int64               `json:"debit_sales_cents"`
	CreditSalesCents     int64               `json:"credit_sales_cents"`
	ExpectedClosingCents int64               `json:"expected_closing_cents"`
	DiscrepancyCents     *int64              `json:"discrepancy_cents"`
	Reconciliation       *ReconciliationView `json:"reconciliation"`
	DayComplete          bool                `json:"day_complete"`
}

// Open starts a drawer session from the counted float.
func Open(svc internalcashdrawer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cash drawer service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body countRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.OpenDrawer(r.Context(), internalcashdrawer.OpenInput{
			ActorID: actorID,
			Counts:  body.Counts,
			Notes:   body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toSessionView(session))
	}
}

// Close counts the drawer out and records the discrepancy.
func Close(svc internalcashdrawer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cash drawer service unavailable"))
			return
		}
		actorID, sessionID, err := parseSessionTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body countRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.CloseDrawer(r.Context(), internalcashdrawer.CloseInput{
			SessionID: sessionID,
			ActorID:   actorID,
			Counts:    body.Counts,
			Notes:     body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSessionView(session))
	}
}

// Reconcile records the card terminal batch totals for a closed session.
func Reconcile(svc internalcashdrawer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cash drawer service unavailable"))
			return
		}
		actorID, sessionID, err := parseSessionTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body reconcileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Reconcile(r.Context(), internalcashdrawer.ReconcileInput{
			SessionID:         sessionID,
			ActorID:           actorID,
			DebitActualCents:  body.DebitActualCents,
			CreditActualCents: body.CreditActualCents,
			Notes:             body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toReconciliationView(rec))
	}
}

func Summary(svc internalcashdrawer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cash drawer service unavailable"))
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view := SummaryView{
			Session:              toSessionView(summary.Session),
			CashSalesCents:       summary.CashSalesCents,
			DebitSalesCents:      summary.DebitSalesCents,
			CreditSalesCents:     summary.CreditSalesCents,
			ExpectedClosingCents: summary.ExpectedClosingCents,
			DiscrepancyCents:     summary.DiscrepancyCents,
			DayComplete:          summary.DayComplete,
		}
		if summary.Reconciliation != nil {
			rec := toReconciliationView(summary.Reconciliation)
			view.Reconciliation = &rec
		}
		responses.WriteSuccess(w, view)
	}
}

// Current returns the open session, or not found when the till is closed.
func Current(svc internalcashdrawer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cash drawer service unavailable"))
			return
		}
		session, err := svc.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSessionView(session))
	}
}

// SessionListView is one page of sessions plus the cursor for the next.
type SessionListView struct {
	Items  []SessionView `json:"items"`
	Cursor string        `json:"cursor,omitempty"`
}

// List pages through sessions newest first.
func List(svc internalcashdrawer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cash drawer service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := SessionListView{Items: make([]SessionView, 0, len(list.Sessions)), Cursor: list.Cursor}
		for i := range list.Sessions {
			out.Items = append(out.Items, toSessionView(&list.Sessions[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func parseSessionTarget(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	actorID, err := middleware.RequireActorID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	sessionID, err := validators.ParseUUIDParam(r, "sessionId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return actorID, sessionID, nil
}

func toSessionView(s *models.CashDrawerSession) SessionView {
	if s == nil {
		return SessionView{}
	}
	return SessionView{
		ID:                   s.ID,
		Status:               s.Status,
		OpenedBy:             s.OpenedBy,
		ClosedBy:             s.ClosedBy,
		OpeningCounts:        s.OpeningCounts,
		OpeningTotalCents:    s.OpeningTotalCents,
		ClosingCounts:        s.ClosingCounts,
		ClosingTotalCents:    s.ClosingTotalCents,
		ExpectedClosingCents: s.ExpectedClosingCents,
		DiscrepancyCents:     s.DiscrepancyCents,
		Notes:                s.Notes,
		OpenedAt:             s.OpenedAt,
		ClosedAt:             s.ClosedAt,
	}
}

func toReconciliationView(r *models.TerminalReconciliation) ReconciliationView {
	return ReconciliationView{
		ID:                     r.ID,
		SessionID:              r.SessionID,
		ReconciledBy:           r.ReconciledBy,
		DebitExpectedCents:     r.DebitExpectedCents,
		DebitActualCents:       r.DebitActualCents,
		DebitDiscrepancyCents:  r.DebitDiscrepancyCents,
		CreditExpectedCents:    r.CreditExpectedCents,
		CreditActualCents:      r.CreditActualCents,
		CreditDiscrepancyCents: r.CreditDiscrepancyCents,
		Notes:                  r.Notes,
		CreatedAt:              r.CreatedAt,
	}
}
