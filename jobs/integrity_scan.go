package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/helios-iam/helios-iam/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityScanJob looks for link rows whose endpoints no longer exist.
// The schema enforces referential integrity, so findings indicate either
// out-of-band writes or a migration gone wrong; the job reports them and
// optionally repairs.
type IntegrityScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityScanJob wires dependencies for the integrity scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type danglingCheck struct {
	table  string
	kind   string
	count  string
	repair string
}

var danglingChecks = []danglingCheck{
	{
		table: "role_permissions",
		kind:  "missing_role",
		count: `SELECT COUNT(*) FROM role_permissions rp
		        LEFT JOIN roles r ON r.id = rp.role_id WHERE r.id IS NULL`,
		repair: `DELETE FROM role_permissions rp
		         WHERE NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = rp.role_id)`,
	},
	{
		table: "role_permissions",
		kind:  "missing_permission",
		count: `SELECT COUNT(*) FROM role_permissions rp
		        LEFT JOIN permissions p ON p.id = rp.permission_id WHERE p.id IS NULL`,
		repair: `DELETE FROM role_permissions rp
		         WHERE NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = rp.permission_id)`,
	},
	{
		table: "user_roles",
		kind:  "missing_user",
		count: `SELECT COUNT(*) FROM user_roles ur
		        LEFT JOIN users u ON u.id = ur.user_id WHERE u.id IS NULL`,
		repair: `DELETE FROM user_roles ur
		         WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = ur.user_id)`,
	},
	{
		table: "user_roles",
		kind:  "missing_role",
		count: `SELECT COUNT(*) FROM user_roles ur
		        LEFT JOIN roles r ON r.id = ur.role_id WHERE r.id IS NULL`,
		repair: `DELETE FROM user_roles ur
		         WHERE NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = ur.role_id)`,
	},
}

// Handle processes integrity scan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity scan: handler not configured")
	}
	if j.Pool == nil {
		return errors.New("integrity scan: pool not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("repair", payload.Repair))
	logger.Info("starting integrity scan")
	start := j.now()

	total := 0
	for _, check := range danglingChecks {
		var count int
		if err := j.Pool.QueryRow(ctx, check.count).Scan(&count); err != nil {
			resultErr = err
			logger.Error("integrity check failed",
				slog.String("table", check.table),
				slog.String("kind", check.kind),
				slog.Any("error", err))
			return resultErr
		}
		if count == 0 {
			continue
		}
		total += count
		j.metrics().AddFindings(check.table, check.kind, count)
		logger.Warn("dangling link rows detected",
			slog.String("table", check.table),
			slog.String("kind", check.kind),
			slog.Int("count", count))
		if payload.Repair {
			tag, err := j.Pool.Exec(ctx, check.repair)
			if err != nil {
				resultErr = err
				logger.Error("repair failed",
					slog.String("table", check.table),
					slog.String("kind", check.kind),
					slog.Any("error", err))
				return resultErr
			}
			logger.Info("repaired dangling link rows",
				slog.String("table", check.table),
				slog.String("kind", check.kind),
				slog.Int64("deleted", tag.RowsAffected()))
		}
	}

	logger.Info("completed integrity scan",
		slog.Int("findings", total),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
