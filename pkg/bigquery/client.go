package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/guildlytics/guildlytics-backend/pkg/config"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string

	mu      sync.Mutex
	ensured map[string]struct{}
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type Pinger interface {
	Ping(context.Context) error
}

// NewClient creates a BigQuery client and verifies the configured dataset exists.
// Tables are provisioned lazily via EnsureTable.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	opts := clientOptions(gcp)
	bqClient, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		ensured:   make(map[string]struct{}),
	}

	if err := client.checkDataset(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "bigquery client initialized")
	}

	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) checkDataset(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("dataset %q does not exist", c.dataset.DatasetID))
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// EnsureTable creates the table with the given schema if it is absent. The
// result is cached per table name, so steady-state writes skip the metadata
// round trip. A table that exists with a schema missing any of the expected
// columns is a configuration error, not a retryable one.
func (c *Client) EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return errTableNameRequired
	}

	c.mu.Lock()
	_, done := c.ensured[name]
	c.mu.Unlock()
	if done {
		return nil
	}

	tbl := c.dataset.Table(name)
	meta, err := tbl.Metadata(ctx)
	switch {
	case err == nil:
		if err := verifySchema(name, meta.Schema, schema); err != nil {
			return err
		}
	case isNotFound(err):
		createErr := tbl.Create(ctx, &bigquery.TableMetadata{Schema: schema})
		if createErr != nil && !isAlreadyExists(createErr) {
			return fmt.Errorf("creating table %q: %w", name, createErr)
		}
	default:
		return fmt.Errorf("checking table %q: %w", name, err)
	}

	c.mu.Lock()
	c.ensured[name] = struct{}{}
	c.mu.Unlock()
	return nil
}

func verifySchema(table string, actual, expected bigquery.Schema) error {
	have := make(map[string]bigquery.FieldType, len(actual))
	for _, field := range actual {
		have[field.Name] = field.Type
	}
	for _, field := range expected {
		typ, ok := have[field.Name]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConfig,
				fmt.Sprintf("table %q is missing column %q", table, field.Name))
		}
		if typ != field.Type {
			return pkgerrors.New(pkgerrors.CodeConfig,
				fmt.Sprintf("table %q column %q is %s, expected %s", table, field.Name, typ, field.Type))
		}
	}
	return nil
}

// RunDML executes a DML statement and returns the number of affected rows.
func (c *Client) RunDML(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return 0, errors.New("sql statement is required")
	}

	q := c.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return 0, err
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && stats != nil {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// TableID returns the fully qualified `project.dataset.table` identifier.
func (c *Client) TableID(table string) string {
	if c == nil || c.dataset == nil {
		return table
	}
	return fmt.Sprintf("%s.%s.%s", c.projectID, c.dataset.DatasetID, table)
}

// Ping verifies the dataset is accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.checkDataset(ctx)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusConflict
	}
	return false
}
