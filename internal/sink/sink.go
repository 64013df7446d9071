package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/guildlytics/guildlytics-backend/internal/events"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
)

// Warehouse is the subset of the BigQuery client the sink needs.
type Warehouse interface {
	EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error
	RunDML(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error)
	TableID(table string) string
}

// Config controls table naming.
type Config struct {
	TablePrefix string
}

// Sink commits drained batches to their warehouse tables with
// merge-by-natural-key semantics. Safe for concurrent calls from independent
// category cycles; the underlying client synchronizes its own state.
type Sink struct {
	db     Warehouse
	log    *logger.Logger
	prefix string
}

func New(db Warehouse, cfg Config, logg *logger.Logger) (*Sink, error) {
	if db == nil {
		return nil, errors.New("warehouse client required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Sink{db: db, log: logg, prefix: cfg.TablePrefix}, nil
}

// Upsert writes one category batch. An empty batch is a no-op. The whole
// batch applies atomically or the error covers all of it; callers requeue on
// failure and the merge keys make the retry idempotent.
func (s *Sink) Upsert(ctx context.Context, category events.Category, batch []events.Record) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	table, err := events.TableName(category, s.prefix)
	if err != nil {
		return 0, err
	}
	schema, err := tableSchema(category)
	if err != nil {
		return 0, err
	}

	ctx = s.log.WithCategory(ctx, category.String())
	started := time.Now()
	affected, err := s.write(ctx, category, table, schema, batch)
	elapsed := time.Since(started)

	if err != nil {
		classified := classifyWarehouseError(table, err)
		failCtx := s.log.WithFields(ctx, map[string]any{
			"table":      table,
			"batch_size": len(batch),
			"elapsed_ms": elapsed.Milliseconds(),
			"transient":  isRetryableWarehouseError(err),
		})
		s.log.Error(failCtx, "warehouse upsert failed", classified)
		return 0, classified
	}

	okCtx := s.log.WithFields(ctx, map[string]any{
		"table":         table,
		"batch_size":    len(batch),
		"rows_affected": affected,
		"elapsed_ms":    elapsed.Milliseconds(),
	})
	s.log.Info(okCtx, "warehouse upsert committed")
	return int(affected), nil
}

func (s *Sink) write(ctx context.Context, category events.Category, table string, schema bigquery.Schema, batch []events.Record) (int64, error) {
	if err := s.db.EnsureTable(ctx, table, schema); err != nil {
		return 0, err
	}
	tableID := s.db.TableID(table)

	switch category {
	case events.CategoryMember:
		return s.writeMembers(ctx, tableID, batch)
	case events.CategoryMessageCount:
		rows, err := compactMessageCounts(batch)
		if err != nil {
			return 0, err
		}
		return s.db.RunDML(ctx, additiveMergeSQL(tableID, "message_count"), rowsParam(rows))
	case events.CategoryMessageDetail:
		rows, err := compactMessageDetails(batch)
		if err != nil {
			return 0, err
		}
		return s.db.RunDML(ctx, messageDetailMergeSQL(tableID), rowsParam(rows))
	case events.CategoryVoiceSession:
		rows, err := compactVoiceSessions(batch)
		if err != nil {
			return 0, err
		}
		return s.db.RunDML(ctx, additiveMergeSQL(tableID, "duration_seconds"), rowsParam(rows))
	case events.CategoryThread:
		rows, err := compactThreads(batch)
		if err != nil {
			return 0, err
		}
		return s.db.RunDML(ctx, threadMergeSQL(tableID), rowsParam(rows))
	case events.CategoryPresenceLog:
		rows, err := compactPresenceLogs(batch)
		if err != nil {
			return 0, err
		}
		return s.db.RunDML(ctx, presenceLogMergeSQL(tableID), rowsParam(rows))
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown sink category %q", category))
	}
}

// writeMembers merges full snapshots first, then applies partial field
// updates so a rename arriving after a join lands on the merged row.
func (s *Sink) writeMembers(ctx context.Context, tableID string, batch []events.Record) (int64, error) {
	rows, updates, err := compactMembers(batch)
	if err != nil {
		return 0, err
	}

	var affected int64
	if len(rows) > 0 {
		n, err := s.db.RunDML(ctx, memberMergeSQL(tableID), rowsParam(rows))
		if err != nil {
			return 0, err
		}
		affected += n
	}

	for _, update := range updates {
		if !events.AllowedMemberColumn(update.Column) {
			warnCtx := s.log.WithFields(ctx, map[string]any{
				"column":  update.Column,
				"user_id": update.UserID,
			})
			s.log.Warn(warnCtx, "dropping member update for disallowed column")
			continue
		}
		n, err := s.db.RunDML(ctx, memberFieldUpdateSQL(tableID, update.Column), []bigquery.QueryParameter{
			{Name: "new_value", Value: update.NewValue},
			{Name: "updated_at", Value: update.UpdatedAt},
			{Name: "user_id", Value: update.UserID},
		})
		if err != nil {
			return 0, err
		}
		affected += n
	}
	return affected, nil
}

func rowsParam(rows any) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{{Name: "rows", Value: rows}}
}

// classifyWarehouseError keeps already-coded errors (schema mismatch is a
// CONFIG error from EnsureTable) and maps raw API failures to a dependency
// error when the cause looks transient, an internal one otherwise.
func classifyWarehouseError(table string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if isRetryableWarehouseError(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("transient failure writing %s", table))
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("failed writing %s", table))
}

func isRetryableWarehouseError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return errors.Is(err, context.DeadlineExceeded)
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
