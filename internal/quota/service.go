package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
)

// DefaultGraceDays is how long after the first warning repeated
// notifications stay suppressed while warnings keep being recorded.
const DefaultGraceDays = 10

// Store is the persistence surface for warning cycles. The upsert must
// be transactional per (tenant, quota type) to avoid double counting
// under concurrent triggers.
type Store interface {
	UpsertQuotaWarning(ctx context.Context, tenantID, quotaType string, percentage float64, threshold db.ThresholdType, now time.Time) (*db.QuotaWarning, error)
	GetQuotaWarning(ctx context.Context, id, tenantID string) (*db.QuotaWarning, error)
	ActiveQuotaWarnings(ctx context.Context, tenantID string) ([]*db.QuotaWarning, error)
	DismissQuotaWarning(ctx context.Context, id, tenantID, userID string, at time.Time) error
}

type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewService(store Store, logger *zap.Logger, collector *metrics.Collector) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// RecordWarning registers a threshold crossing for (tenant, quotaType).
// The first call in a cycle creates the row with warning_count 0 and
// stamps first_warned_at; every call, including the first, then bumps
// warning_count and refreshes percentage, threshold and last_warned_at.
// This is deliberately not idempotent: de-duplication of notifications
// is the caller's job, via IsInGracePeriod.
func (s *Service) RecordWarning(ctx context.Context, tenantID, quotaType string, percentage float64, threshold db.ThresholdType) (*db.QuotaWarning, error) {
	warning, err := s.store.UpsertQuotaWarning(ctx, tenantID, quotaType, percentage, threshold, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to record quota warning: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordQuotaWarning(tenantID, quotaType, string(threshold), percentage)
	}

	s.logger.Info("Quota warning recorded",
		zap.String("tenant_id", tenantID),
		zap.String("quota_type", quotaType),
		zap.Float64("percentage", percentage),
		zap.String("threshold", string(threshold)),
		zap.Int("warning_count", warning.WarningCount),
	)

	return warning, nil
}

// IsInGracePeriod reports whether the warning cycle started less than
// the given number of days ago. Used to suppress repeat notifications
// while warnings keep accumulating.
func (s *Service) IsInGracePeriod(warning *db.QuotaWarning, days int) bool {
	if days <= 0 {
		days = DefaultGraceDays
	}
	return s.now().Sub(warning.FirstWarnedAt) < time.Duration(days)*24*time.Hour
}

// Dismiss closes the current warning cycle. The next breach for the same
// tenant and quota type starts a new cycle with a fresh first_warned_at.
func (s *Service) Dismiss(ctx context.Context, warningID, tenantID, userID string) error {
	if err := s.store.DismissQuotaWarning(ctx, warningID, tenantID, userID, s.now()); err != nil {
		return fmt.Errorf("failed to dismiss quota warning: %w", err)
	}

	s.logger.Info("Quota warning dismissed",
		zap.String("warning_id", warningID),
		zap.String("tenant_id", tenantID),
		zap.String("dismissed_by", userID),
	)
	return nil
}

func (s *Service) ActiveWarnings(ctx context.Context, tenantID string) ([]*db.QuotaWarning, error) {
	return s.store.ActiveQuotaWarnings(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, warningID, tenantID string) (*db.QuotaWarning, error) {
	return s.store.GetQuotaWarning(ctx, warningID, tenantID)
}
