package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-iam/helios-iam/internal/authz"
	jobmetrics "github.com/helios-iam/helios-iam/internal/jobs"
)

// CacheWarmupJob pre-resolves effective permission sets for active users so
// the first authorization check after an invalidation does not pay the
// database round trip.
type CacheWarmupJob struct {
	Authz   *authz.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(authzSvc *authz.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{
		Authz:   authzSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("cache warmup: handler not configured")
	}
	if j.Authz == nil || j.Pool == nil {
		return errors.New("cache warmup: dependencies not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskCacheWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting cache warmup")
	start := j.now()

	userIDs, err := j.fetchActiveUsers(ctx, payload.MaxUsers)
	if err != nil {
		resultErr = err
		logger.Error("load warmup users", slog.Any("error", err))
		return resultErr
	}
	if len(userIDs) == 0 {
		logger.Info("no users discovered for warmup")
		return resultErr
	}

	warmed := 0
	for _, userID := range userIDs {
		if err := j.warmUser(ctx, userID); err != nil {
			resultErr = err
			logger.Error("warm user", slog.Int64("user_id", userID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed cache warmup",
		slog.Int("users", warmed),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *CacheWarmupJob) warmUser(ctx context.Context, userID int64) error {
	userCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := j.Authz.EffectivePermissions(userCtx, userID)
	return err
}

func (j *CacheWarmupJob) fetchActiveUsers(ctx context.Context, maxUsers int) ([]int64, error) {
	query := `SELECT DISTINCT u.id
	          FROM users u
	          JOIN user_roles ur ON ur.user_id = u.id
	          WHERE u.status = 'active'
	          ORDER BY u.id`
	args := []any{}
	if maxUsers > 0 {
		query += ` LIMIT $1`
		args = append(args, maxUsers)
	}
	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCacheWarmup))
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
