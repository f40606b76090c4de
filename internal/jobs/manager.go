// Package jobs runs the periodic background work of the lending core.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"lms/internal/config"
	"lms/internal/logger"
	"lms/internal/metrics"
	"lms/internal/repositories"
	"lms/internal/services"
)

// Manager owns the cron scheduler and its jobs.
type Manager struct {
	cron  *cron.Cron
	db    *gorm.DB
	loans repositories.LoanRepository
	cfg   config.JobsConfig

	graceDays int
	loc       *time.Location
	now       func() time.Time
}

func NewManager(db *gorm.DB, loans repositories.LoanRepository, cfg config.JobsConfig, lending config.LendingConfig) *Manager {
	return &Manager{
		cron:      cron.New(cron.WithSeconds()),
		db:        db,
		loans:     loans,
		cfg:       cfg,
		graceDays: lending.GraceDays,
		loc:       lending.Location(),
		now:       time.Now,
	}
}

// Start registers the enabled jobs and starts the scheduler.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.OverdueSweep.Enabled {
		_, err := m.cron.AddFunc(m.cfg.OverdueSweep.Schedule, func() {
			if _, err := m.SweepOverdue(ctx); err != nil {
				logger.Error(ctx, "SweepOverdue: sweep failed", err)
			}
		})
		if err != nil {
			return err
		}
	}

	m.cron.Start()
	logger.Info(ctx, "cron jobs started", "jobs", len(m.cron.Entries()))
	return nil
}

// Stop waits for running jobs to finish.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	logger.Info(context.Background(), "cron jobs stopped")
}

// SweepOverdue counts active loans already past the grace period and
// publishes the counts per institute. A loan is overdue once a return today
// would be fined.
func (m *Manager) SweepOverdue(ctx context.Context) (map[uuid.UUID]int64, error) {
	start := time.Now()
	today := services.CalendarDay(m.now(), m.loc)
	cutoff := today.AddDate(0, 0, -m.graceDays)

	counts, err := m.loans.CountIssuedBefore(m.db.WithContext(ctx), cutoff)
	if err != nil {
		return nil, err
	}

	metrics.OverdueLoans.Reset()
	var total int64
	for instituteID, n := range counts {
		metrics.OverdueLoans.WithLabelValues(instituteID.String()).Set(float64(n))
		total += n
	}
	logger.Info(ctx, "SweepOverdue: completed",
		"institutes", len(counts), "overdue_loans", total, "duration", time.Since(start).String())
	return counts, nil
}
