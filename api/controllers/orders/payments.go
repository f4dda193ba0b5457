package orders

import (
	"net/http"

	"github.com/angelmondragon/settlez-backend/api/responses"
	"github.com/angelmondragon/settlez-backend/api/validators"
	internalpayments "github.com/angelmondragon/settlez-backend/internal/payments"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

// AddPayment records a tender against the order and reports the balance due.
func AddPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AddPayment(r.Context(), internalpayments.AddPaymentInput{
			Target:              target,
			Method:              enums.PaymentMethod(body.Method),
			Amount:              body.Amount,
			AmountTendered:      body.AmountTendered,
			GiftCertificateCode: validators.SanitizeString(body.GiftCertificateCode, 64),
			Reference:           sanitizeOptional(body.Reference, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentResultView(result))
	}
}

// RemovePayment reverses a tender on an unfinalized order.
func RemovePayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RemovePayment(r.Context(), internalpayments.RemovePaymentInput{Target: target, PaymentID: paymentID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResultView(result))
	}
}
