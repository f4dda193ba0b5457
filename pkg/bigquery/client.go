package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

const (
	metadataCheckTimeout = 10 * time.Second
)

// TableSpec describes a sink table. Schema and PartitionField are only used
// when the table has to be created.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
}

type Client struct {
	client     *bigquery.Client
	dataset    *bigquery.Dataset
	projectID  string
	location   string
	autoCreate bool
	tables     []TableSpec
	logg       *logger.Logger
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// NewClient creates a BigQuery client and verifies, or with cfg.AutoCreate
// creates, the dataset and every table in specs.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, specs ...TableSpec) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	tables, err := normalizeSpecs(specs)
	if err != nil {
		return nil, err
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:     bqClient,
		dataset:    bqClient.Dataset(datasetID),
		projectID:  projectID,
		location:   strings.TrimSpace(cfg.Location),
		autoCreate: cfg.AutoCreate,
		tables:     tables,
		logg:       logg,
	}
	if err := client.ensureDatasetAndTables(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		names := make([]string, 0, len(tables))
		for _, t := range tables {
			names = append(names, t.Name)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"tables":  names,
		}), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func normalizeSpecs(specs []TableSpec) ([]TableSpec, error) {
	out := make([]TableSpec, 0, len(specs))
	seen := map[string]bool{}
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" || seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true
		out = append(out, spec)
	}
	if len(out) == 0 {
		return nil, errTableNameRequired
	}
	return out, nil
}

func (c *Client) ensureDatasetAndTables(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
		}
		if !c.autoCreate {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		if err := c.dataset.Create(ctx, &bigquery.DatasetMetadata{Location: c.location}); err != nil && !isConflict(err) {
			return fmt.Errorf("creating dataset %q: %w", c.dataset.DatasetID, err)
		}
		c.logCreated(ctx, "bigquery.dataset_created", c.dataset.DatasetID)
	}

	for _, spec := range c.tables {
		table := c.dataset.Table(spec.Name)
		if _, err := table.Metadata(ctx); err != nil {
			if !isNotFound(err) {
				return fmt.Errorf("checking table %q: %w", spec.Name, err)
			}
			if !c.autoCreate || len(spec.Schema) == 0 {
				return fmt.Errorf("table %q does not exist", spec.Name)
			}
			if err := table.Create(ctx, tableMetadata(spec)); err != nil && !isConflict(err) {
				return fmt.Errorf("creating table %q: %w", spec.Name, err)
			}
			c.logCreated(ctx, "bigquery.table_created", spec.Name)
		}
	}
	return nil
}

func tableMetadata(spec TableSpec) *bigquery.TableMetadata {
	meta := &bigquery.TableMetadata{Schema: spec.Schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: spec.PartitionField,
		}
	}
	return meta
}

func (c *Client) logCreated(ctx context.Context, msg, name string) {
	if c.logg == nil {
		return
	}
	c.logg.Info(c.logg.WithField(ctx, "name", name), msg)
}

// Ping verifies the dataset and tables are accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.ensureDatasetAndTables(ctx)
}

// InsertRows streams rows into table. Row-level rejections are summarized
// into one error that still unwraps to bigquery.PutMultiError.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	err := c.dataset.Table(table).Inserter().Put(ctx, rows)
	return summarizePutError(table, len(rows), err)
}

func summarizePutError(table string, total int, err error) error {
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) || len(multi) == 0 {
		return err
	}
	return fmt.Errorf("%s: %d of %d rows rejected (row %d: %s): %w",
		table, len(multi), total, multi[0].RowIndex, multi[0].Error(), err)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiCode(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiCode(err) == http.StatusConflict
}

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
