package types

import (
	"strings"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlez-backend/pkg/money"
)

// String is NULL for blank input.
func String(value string) cbigquery.NullString {
	trimmed := strings.TrimSpace(value)
	return cbigquery.NullString{StringVal: trimmed, Valid: trimmed != ""}
}

// UUID is NULL for a missing or nil id.
func UUID(id *uuid.UUID) cbigquery.NullString {
	if id == nil || *id == uuid.Nil {
		return cbigquery.NullString{}
	}
	return String(id.String())
}

func Int64(value int64) cbigquery.NullInt64 {
	return cbigquery.NullInt64{Int64: value, Valid: true}
}

// Cents converts a currency amount to whole cents.
func Cents(d decimal.Decimal) cbigquery.NullInt64 {
	return Int64(money.ToCents(d))
}
