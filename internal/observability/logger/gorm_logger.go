package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/invoicer/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Outcomes tagged on store query log lines.
const (
	QueryOutcomeOK           = "ok"
	QueryOutcomeSlow         = "slow"
	QueryOutcomeLockWait     = "lock_wait"
	QueryOutcomeDuplicateKey = "duplicate_key"
	QueryOutcomeError        = "error"
)

// GormLoggerConfig configures the store query logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LockWaitThreshold flags daily counter reads under FOR UPDATE that
	// took at least this long, i.e. saves queued behind another save of
	// the same day.
	LockWaitThreshold time.Duration
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:             gormlogger.Warn,
		SlowThreshold:     200 * time.Millisecond,
		LockWaitThreshold: 50 * time.Millisecond,
	}
}

// ParseGormLevel maps silent, error, warn and info to GORM log levels,
// defaulting to warn.
func ParseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// GormLogger writes one structured line per notable store query. Unique
// violations and lock waits are logged at warn: the invoice service turns
// them into 409 and 503 answers, so they are outcomes rather than faults.
type GormLogger struct {
	cfg GormLoggerConfig
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *l
	out.cfg.Level = level
	return &out
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Info {
		storeLog(ctx).Debug(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Warn {
		storeLog(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Error {
		storeLog(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	// Lookups that find nothing are answered as 404 by the services.
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}
	elapsed := time.Since(begin)
	if err == nil && l.cfg.Level < gormlogger.Info && !l.past(l.cfg.LockWaitThreshold, elapsed) && !l.past(l.cfg.SlowThreshold, elapsed) {
		return
	}

	sql, rows := fc()
	outcome := l.outcome(sql, elapsed, err)
	fields := []zap.Field{
		zap.String("table", tableFromSQL(sql)),
		zap.String("outcome", outcome),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	log := storeLog(ctx)
	switch outcome {
	case QueryOutcomeError:
		log.Error("store query failed", fields...)
	case QueryOutcomeDuplicateKey, QueryOutcomeLockWait, QueryOutcomeSlow:
		if l.cfg.Level >= gormlogger.Warn {
			log.Warn("store query", fields...)
		}
	default:
		if l.cfg.Level >= gormlogger.Info {
			log.Debug("store query", fields...)
		}
	}
}

// ParamsFilter keeps bound values, client details among them, out of the
// logged SQL.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) outcome(sql string, elapsed time.Duration, err error) string {
	if err != nil {
		switch metrics.ClassifyStoreReason(err) {
		case metrics.StoreReasonUniqueViolation:
			return QueryOutcomeDuplicateKey
		case metrics.StoreReasonDBLockTimeout, metrics.StoreReasonDeadlock, metrics.StoreReasonSerializationFailure:
			return QueryOutcomeLockWait
		}
		return QueryOutcomeError
	}
	if isCounterLock(sql) && l.past(l.cfg.LockWaitThreshold, elapsed) {
		return QueryOutcomeLockWait
	}
	if l.past(l.cfg.SlowThreshold, elapsed) {
		return QueryOutcomeSlow
	}
	return QueryOutcomeOK
}

func (l *GormLogger) past(threshold, elapsed time.Duration) bool {
	return threshold > 0 && elapsed >= threshold
}

func storeLog(ctx context.Context) *zap.Logger {
	return FromContext(ctx).With(zap.String("component", "store"))
}

func isCounterLock(sql string) bool {
	upper := strings.ToUpper(sql)
	return strings.Contains(upper, "DAILY_SEQUENCES") && strings.Contains(upper, "FOR UPDATE")
}

// tableFromSQL returns the first table a statement reads or writes.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			name := strings.Trim(tokens[i+1], "\"`();")
			if name != "" && !strings.EqualFold(name, "SELECT") {
				return strings.ToLower(name)
			}
		}
	}
	return "unknown"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
