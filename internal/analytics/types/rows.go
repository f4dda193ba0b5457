package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SettlementEventRow mirrors the settlement_events table: one row per
// completed, cancelled or refunded order. Money columns are cents.
type SettlementEventRow struct {
	EventID       string               `bigquery:"event_id"`
	EventType     string               `bigquery:"event_type"`
	OccurredAt    time.Time            `bigquery:"occurred_at"`
	ActorID       cbigquery.NullString `bigquery:"actor_id"`
	OrderID       string               `bigquery:"order_id"`
	OrderNumber   cbigquery.NullString `bigquery:"order_number"`
	CustomerID    cbigquery.NullString `bigquery:"customer_id"`
	SessionID     cbigquery.NullString `bigquery:"cash_drawer_session_id"`
	RefundID      cbigquery.NullString `bigquery:"refund_id"`
	RefundNumber  cbigquery.NullString `bigquery:"refund_number"`
	SubtotalCents cbigquery.NullInt64  `bigquery:"subtotal_cents"`
	DiscountCents cbigquery.NullInt64  `bigquery:"discount_cents"`
	TaxCents      cbigquery.NullInt64  `bigquery:"tax_cents"`
	GrossCents    cbigquery.NullInt64  `bigquery:"gross_cents"`
	RefundCents   cbigquery.NullInt64  `bigquery:"refund_cents"`
	NetCents      int64                `bigquery:"net_cents"`
	Tenders       cbigquery.NullJSON   `bigquery:"tenders"`
	Payload       cbigquery.NullJSON   `bigquery:"payload"`
}

// DrawerFactRow mirrors the drawer_session_facts table: one row per drawer
// open, close or terminal reconciliation.
type DrawerFactRow struct {
	EventID                string               `bigquery:"event_id"`
	EventType              string               `bigquery:"event_type"`
	OccurredAt             time.Time            `bigquery:"occurred_at"`
	SessionID              string               `bigquery:"session_id"`
	ActorID                cbigquery.NullString `bigquery:"actor_id"`
	OpeningCents           cbigquery.NullInt64  `bigquery:"opening_cents"`
	ClosingCents           cbigquery.NullInt64  `bigquery:"closing_cents"`
	ExpectedClosingCents   cbigquery.NullInt64  `bigquery:"expected_closing_cents"`
	DiscrepancyCents       cbigquery.NullInt64  `bigquery:"discrepancy_cents"`
	DebitDiscrepancyCents  cbigquery.NullInt64  `bigquery:"debit_discrepancy_cents"`
	CreditDiscrepancyCents cbigquery.NullInt64  `bigquery:"credit_discrepancy_cents"`
	ReportObject           cbigquery.NullString `bigquery:"report_object"`
	Payload                cbigquery.NullJSON   `bigquery:"payload"`
}

// Save implements bigquery.ValueSaver. The event id doubles as the streaming
// insert id so redelivered events are deduplicated on a best-effort basis.
func (r SettlementEventRow) Save() (map[string]cbigquery.Value, string, error) {
	return map[string]cbigquery.Value{
		"event_id":               r.EventID,
		"event_type":             r.EventType,
		"occurred_at":            r.OccurredAt,
		"actor_id":               stringValue(r.ActorID),
		"order_id":               r.OrderID,
		"order_number":           stringValue(r.OrderNumber),
		"customer_id":            stringValue(r.CustomerID),
		"cash_drawer_session_id": stringValue(r.SessionID),
		"refund_id":              stringValue(r.RefundID),
		"refund_number":          stringValue(r.RefundNumber),
		"subtotal_cents":         int64Value(r.SubtotalCents),
		"discount_cents":         int64Value(r.DiscountCents),
		"tax_cents":              int64Value(r.TaxCents),
		"gross_cents":            int64Value(r.GrossCents),
		"refund_cents":           int64Value(r.RefundCents),
		"net_cents":              r.NetCents,
		"tenders":                jsonValue(r.Tenders),
		"payload":                jsonValue(r.Payload),
	}, r.EventID, nil
}

// Save implements bigquery.ValueSaver.
func (r DrawerFactRow) Save() (map[string]cbigquery.Value, string, error) {
	return map[string]cbigquery.Value{
		"event_id":                 r.EventID,
		"event_type":               r.EventType,
		"occurred_at":              r.OccurredAt,
		"session_id":               r.SessionID,
		"actor_id":                 stringValue(r.ActorID),
		"opening_cents":            int64Value(r.OpeningCents),
		"closing_cents":            int64Value(r.ClosingCents),
		"expected_closing_cents":   int64Value(r.ExpectedClosingCents),
		"discrepancy_cents":        int64Value(r.DiscrepancyCents),
		"debit_discrepancy_cents":  int64Value(r.DebitDiscrepancyCents),
		"credit_discrepancy_cents": int64Value(r.CreditDiscrepancyCents),
		"report_object":            stringValue(r.ReportObject),
		"payload":                  jsonValue(r.Payload),
	}, r.EventID, nil
}

func stringValue(v cbigquery.NullString) cbigquery.Value {
	if !v.Valid {
		return nil
	}
	return v.StringVal
}

func int64Value(v cbigquery.NullInt64) cbigquery.Value {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func jsonValue(v cbigquery.NullJSON) cbigquery.Value {
	if !v.Valid {
		return nil
	}
	return v.JSONVal
}
