package types

import (
	cbigquery "cloud.google.com/go/bigquery"
)

// SettlementEventSchema is the settlement_events table layout, partitioned
// by occurred_at.
var SettlementEventSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "actor_id", Type: cbigquery.StringFieldType},
	{Name: "order_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "order_number", Type: cbigquery.StringFieldType},
	{Name: "customer_id", Type: cbigquery.StringFieldType},
	{Name: "cash_drawer_session_id", Type: cbigquery.StringFieldType},
	{Name: "refund_id", Type: cbigquery.StringFieldType},
	{Name: "refund_number", Type: cbigquery.StringFieldType},
	{Name: "subtotal_cents", Type: cbigquery.IntegerFieldType},
	{Name: "discount_cents", Type: cbigquery.IntegerFieldType},
	{Name: "tax_cents", Type: cbigquery.IntegerFieldType},
	{Name: "gross_cents", Type: cbigquery.IntegerFieldType},
	{Name: "refund_cents", Type: cbigquery.IntegerFieldType},
	{Name: "net_cents", Type: cbigquery.IntegerFieldType, Required: true},
	{Name: "tenders", Type: cbigquery.JSONFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

// DrawerFactSchema is the drawer_session_facts table layout.
var DrawerFactSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "session_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "actor_id", Type: cbigquery.StringFieldType},
	{Name: "opening_cents", Type: cbigquery.IntegerFieldType},
	{Name: "closing_cents", Type: cbigquery.IntegerFieldType},
	{Name: "expected_closing_cents", Type: cbigquery.IntegerFieldType},
	{Name: "discrepancy_cents", Type: cbigquery.IntegerFieldType},
	{Name: "debit_discrepancy_cents", Type: cbigquery.IntegerFieldType},
	{Name: "credit_discrepancy_cents", Type: cbigquery.IntegerFieldType},
	{Name: "report_object", Type: cbigquery.StringFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

// OccurredAtPartition is the partition column shared by both tables.
const OccurredAtPartition = "occurred_at"
