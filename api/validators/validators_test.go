package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
)

type noteRequest struct {
	Reason string `json:"reason" validate:"required,max=20"`
	Method string `json:"method" validate:"omitempty,oneof=cash debit"`
}

func TestDecodeJSONBody(t *testing.T) {
	var dest noteRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"damaged","method":"cash"}`))
	require.NoError(t, DecodeJSONBody(req, &dest))
	assert.Equal(t, "damaged", dest.Reason)

	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"cheque"}`)), &noteRequest{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["reason"])
	assert.Equal(t, "must be one of cash debit", details["method"])

	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"x","extra":1}`)), &noteRequest{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &noteRequest{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsTrailingDataAndOversizedBodies(t *testing.T) {
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"a"}{"reason":"b"}`)), &noteRequest{})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "single JSON object")

	huge := `{"reason":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge)), &noteRequest{})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "exceeds")
}

type tenderRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Lines  []struct {
		Amount decimal.Decimal `json:"amount" validate:"gte=0"`
	} `json:"lines" validate:"dive"`
}

func TestDecodeJSONBodyValidatesDecimals(t *testing.T) {
	var ok tenderRequest
	require.NoError(t, DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.50","lines":[{"amount":"0"}]}`)), &ok))
	assert.Equal(t, "12.5", ok.Amount.String())

	require.NoError(t, DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[]}`)), &tenderRequest{}))

	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"-1","lines":[{"amount":"-0.01"}]}`)), &tenderRequest{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, isMap := typed.Details().(map[string]string)
	require.True(t, isMap)
	assert.Equal(t, "must be greater than 0", details["amount"])
	assert.Equal(t, "must be at least 0", details["lines[0].amount"])
}

func TestDecodeJSONBodyReportsTypeErrors(t *testing.T) {
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":12}`)), &noteRequest{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, isMap := typed.Details().(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "reason", details["field"])
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	var dest struct {
		Notes string `json:"notes"`
	}
	require.NoError(t, DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &dest))
	assert.Empty(t, dest.Notes)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderID", id.String())
	rc.URLParams.Add("bad", "nope")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "orderID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "bad")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5", nil)
	v, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 20, 1, 100)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, 100, details["max"])
	assert.Equal(t, 500, details["value"])

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil), "limit", 20, 1, 100)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Latte", SanitizeString("  Latte \n", 0))
	assert.Equal(t, "damaged", SanitizeString("dam\x00aged\x07", 0))
	assert.Equal(t, "café", SanitizeString("café au lait", 4))
	assert.Equal(t, "ab", SanitizeString("ab  cd", 3))
	assert.Equal(t, "", SanitizeString("\t\r\n", 10))
}

func TestParsePagination(t *testing.T) {
	cursor := pagination.EncodeCursor(pagination.Cursor{At: time.Now(), ID: uuid.New()})
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=2&cursor="+cursor, nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: 2, Cursor: cursor}, params)

	params, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, params.Limit)
	assert.Empty(t, params.Cursor)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?cursor=bm9wZQ", nil))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
