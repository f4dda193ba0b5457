package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/settlez-backend/pkg/config"
)

func TestNormalizeSpecsSkipsBlanksAndDuplicates(t *testing.T) {
	specs, err := normalizeSpecs([]TableSpec{
		{Name: " settlement_events "},
		{Name: ""},
		{Name: "settlement_events"},
		{Name: "drawer_session_facts"},
	})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "settlement_events", specs[0].Name)
	assert.Equal(t, "drawer_session_facts", specs[1].Name)

	_, err = normalizeSpecs([]TableSpec{{Name: "  "}})
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestClientOptionsByCredentialSource(t *testing.T) {
	cases := []struct {
		name string
		gcp  config.GCPConfig
		want int
	}{
		{name: "json wins over file", gcp: config.GCPConfig{CredentialsJSON: `{"dummy":"value"}`, ApplicationCredentials: "/tmp/creds"}, want: 1},
		{name: "file", gcp: config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, want: 1},
		{name: "ambient", gcp: config.GCPConfig{}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, clientOptions(tc.gcp), tc.want)
		})
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	spec := TableSpec{Name: "settlement_events"}

	_, err := NewClient(context.Background(), config.GCPConfig{}, config.BigQueryConfig{Dataset: "settlement"}, nil, spec)
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil, spec)
	assert.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "settlement"}, nil)
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestTableMetadataPartitioning(t *testing.T) {
	schema := bigquery.Schema{{Name: "occurred_at", Type: bigquery.TimestampFieldType}}

	meta := tableMetadata(TableSpec{Name: "t", Schema: schema, PartitionField: "occurred_at"})
	require.NotNil(t, meta.TimePartitioning)
	assert.Equal(t, "occurred_at", meta.TimePartitioning.Field)
	assert.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)
	assert.Equal(t, schema, meta.Schema)

	assert.Nil(t, tableMetadata(TableSpec{Name: "t", Schema: schema}).TimePartitioning)
}

func TestSummarizePutError(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, summarizePutError("t", 3, plain))
	assert.NoError(t, summarizePutError("t", 3, nil))

	multi := bigquery.PutMultiError{
		{RowIndex: 2, Errors: bigquery.MultiError{errors.New("no such field")}},
	}
	err := summarizePutError("settlement_events", 3, multi)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settlement_events: 1 of 3 rows rejected (row 2")

	var unwrapped bigquery.PutMultiError
	assert.True(t, errors.As(err, &unwrapped))
}

func TestAPIErrorCodes(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
	assert.True(t, isConflict(&googleapi.Error{Code: http.StatusConflict}))
	assert.False(t, isNotFound(errors.New("plain")))
}

func TestNilClientInsertFails(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	assert.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	assert.NoError(t, c.Close())
}
