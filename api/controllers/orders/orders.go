package orders

import (
	"context"
	"net/http"

	"github.com/angelmondragon/settlez-backend/api/middleware"
	"github.com/angelmondragon/settlez-backend/api/responses"
	"github.com/angelmondragon/settlez-backend/api/validators"
	internalorders "github.com/angelmondragon/settlez-backend/internal/orders"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

// Create opens a new draft order for the acting staff member.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createOrderRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Create(r.Context(), internalorders.CreateInput{
			ActorID:    actorID,
			CustomerID: body.CustomerID,
			Notes:      sanitizeOptional(body.Notes, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderView(order))
	}
}

// Detail returns the order aggregate.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// Events returns the order's audit trail oldest first.
func Events(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.Events(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toEventViews(events))
	}
}

func AddLine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusCreated, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		var body addLineRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.AddLine(r.Context(), internalorders.AddLineInput{
			Target:       target,
			SellableType: enums.SellableType(body.SellableType),
			SellableID:   body.SellableID,
			Quantity:     body.Quantity,
		})
	})
}

func UpdateLineQuantity(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			return nil, err
		}
		var body updateLineRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateLineQuantity(r.Context(), internalorders.UpdateLineQuantityInput{
			Target:   target,
			LineID:   lineID,
			Quantity: body.Quantity,
		})
	})
}

func RemoveLine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveLine(r.Context(), internalorders.LineInput{Target: target, LineID: lineID})
	})
}

func ApplyOrderDiscount(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusCreated, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		var body orderDiscountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		scope := enums.OrderDiscountScope(body.Scope)
		if scope == "" {
			scope = enums.OrderDiscountScopeAllItems
		}
		return svc.ApplyOrderDiscount(r.Context(), internalorders.ApplyOrderDiscountInput{
			Target:  target,
			Name:    validators.SanitizeString(body.Name, 120),
			Type:    enums.DiscountType(body.Type),
			Value:   body.Value,
			Scope:   scope,
			LineIDs: body.LineIDs,
		})
	})
}

func RemoveOrderDiscount(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return discountMutation(svc, logg, internalorders.Service.RemoveOrderDiscount)
}

func ApplyLineDiscount(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusCreated, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			return nil, err
		}
		var body lineDiscountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.ApplyLineDiscount(r.Context(), internalorders.ApplyLineDiscountInput{
			Target: target,
			LineID: lineID,
			Name:   validators.SanitizeString(body.Name, 120),
			Type:   enums.DiscountType(body.Type),
			Value:  body.Value,
		})
	})
}

// RemoveAutoDiscount drops an automatic allocation and overrides its source
// discount for the rest of the order's life.
func RemoveAutoDiscount(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return discountMutation(svc, logg, internalorders.Service.RemoveAutoDiscount)
}

func RestoreAutoDiscount(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return discountMutation(svc, logg, internalorders.Service.RestoreAutoDiscount)
}

func ExcludeOneUnit(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return discountMutation(svc, logg, internalorders.Service.ExcludeOneUnit)
}

func RestoreOneUnit(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return discountMutation(svc, logg, internalorders.Service.RestoreOneUnit)
}

func SetCustomer(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		var body setCustomerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.SetCustomer(r.Context(), internalorders.SetCustomerInput{Target: target, CustomerID: body.CustomerID})
	})
}

func SetTaxExempt(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		var body setTaxExemptRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.SetTaxExempt(r.Context(), internalorders.SetTaxExemptInput{
			Target:      target,
			TaxExempt:   body.TaxExempt,
			Certificate: sanitizeOptional(body.Certificate, 120),
		})
	})
}

func SetNotes(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		var body setNotesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.SetNotes(r.Context(), internalorders.SetNotesInput{Target: target, Notes: sanitizeOptional(body.Notes, 1000)})
	})
}

func Recalculate(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(svc, logg, internalorders.Service.RecalculateTotals)
}

func Hold(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(svc, logg, internalorders.Service.Hold)
}

func Resume(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(svc, logg, internalorders.Service.Resume)
}

// Complete finalizes a fully paid order.
func Complete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(svc, logg, internalorders.Service.Complete)
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(svc, logg, internalorders.Service.Cancel)
}

type (
	orderMutation func(r *http.Request, target internalorders.Target) (*models.Order, error)
	discountOp    func(svc internalorders.Service, ctx context.Context, input internalorders.DiscountInput) (*models.Order, error)
	lifecycleOp   func(svc internalorders.Service, ctx context.Context, target internalorders.Target) (*models.Order, error)
)

// mutate resolves the actor and order id, runs fn and writes the updated order.
func mutate(svc internalorders.Service, logg *logger.Logger, status int, fn orderMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, target.OrderID.String())
		}
		r = r.WithContext(ctx)

		order, err := fn(r, target)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, toOrderView(order))
	}
}

func discountMutation(svc internalorders.Service, logg *logger.Logger, op discountOp) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		discountID, err := validators.ParseUUIDParam(r, "discountId")
		if err != nil {
			return nil, err
		}
		return op(svc, r.Context(), internalorders.DiscountInput{Target: target, DiscountID: discountID})
	})
}

func lifecycle(svc internalorders.Service, logg *logger.Logger, op lifecycleOp) http.HandlerFunc {
	return mutate(svc, logg, http.StatusOK, func(r *http.Request, target internalorders.Target) (*models.Order, error) {
		return op(svc, r.Context(), target)
	})
}

func parseTarget(r *http.Request) (internalorders.Target, error) {
	actorID, err := middleware.RequireActorID(r.Context())
	if err != nil {
		return internalorders.Target{}, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return internalorders.Target{}, err
	}
	return internalorders.Target{OrderID: orderID, ActorID: actorID}, nil
}

func sanitizeOptional(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	cleaned := validators.SanitizeString(*value, maxLen)
	return &cleaned
}
