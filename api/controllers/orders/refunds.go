package orders

import (
	"net/http"

	"github.com/angelmondragon/settlez-backend/api/responses"
	"github.com/angelmondragon/settlez-backend/api/validators"
	internalrefunds "github.com/angelmondragon/settlez-backend/internal/refunds"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

// ProcessRefund reverses quantities and amounts on a settled order.
func ProcessRefund(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body refundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines := make([]internalrefunds.LineRequest, 0, len(body.Lines))
		for _, line := range body.Lines {
			lines = append(lines, internalrefunds.LineRequest{
				OrderLineID: line.OrderLineID,
				Quantity:    line.Quantity,
				Amount:      line.Amount,
				Restock:     line.Restock,
			})
		}
		result, err := svc.ProcessRefund(r.Context(), internalrefunds.ProcessRefundInput{
			Target: target,
			Reason: validators.SanitizeString(body.Reason, 500),
			Lines:  lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, RefundResultView{
			Refund: toRefundView(result.Refund),
			Order:  toOrderView(result.Order),
		})
	}
}

func ListRefunds(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refunds, err := svc.List(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]RefundView, 0, len(refunds))
		for i := range refunds {
			out = append(out, toRefundView(&refunds[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
