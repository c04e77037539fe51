package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tenantcore/configvault/model"
	"gorm.io/gorm"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron: c,
		db:   db,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Daily at 03:00: report credentials that have not been used recently
	_, err := m.cron.AddFunc("0 0 3 * * *", func() {
		m.logJobStart("stale_credential_report")
		m.ReportStaleCredentials()
	})
	if err != nil {
		return err
	}

	// 2. Weekly on Sunday at 04:00: prune old cron job logs
	_, err = m.cron.AddFunc("0 0 4 * * 0", func() {
		m.logJobStart("cleanup_cron_job_logs")
		m.CleanupCronJobLogs()
	})
	if err != nil {
		return err
	}

	return nil
}

// logJobStart records the start of a job execution
func (m *CronManager) logJobStart(jobName string) {
	entry := model.CronJobLog{
		JobName:   jobName,
		Status:    "started",
		StartedAt: time.Now(),
	}
	if err := m.db.Create(&entry).Error; err != nil {
		log.Printf("[CRON] Failed to log start of %s: %v", jobName, err)
	}
}

// logJobComplete records a successful job execution
func (m *CronManager) logJobComplete(jobName, message string, startedAt time.Time) {
	now := time.Now()
	entry := model.CronJobLog{
		JobName:     jobName,
		Status:      "completed",
		StartedAt:   startedAt,
		CompletedAt: &now,
		Duration:    int(now.Sub(startedAt).Milliseconds()),
		Message:     message,
	}
	if err := m.db.Create(&entry).Error; err != nil {
		log.Printf("[CRON] Failed to log completion of %s: %v", jobName, err)
	}
}

// logJobError records a failed job execution
func (m *CronManager) logJobError(jobName string, jobErr error, startedAt time.Time) {
	now := time.Now()
	entry := model.CronJobLog{
		JobName:     jobName,
		Status:      "failed",
		StartedAt:   startedAt,
		CompletedAt: &now,
		Duration:    int(now.Sub(startedAt).Milliseconds()),
		ErrorMsg:    jobErr.Error(),
	}
	if err := m.db.Create(&entry).Error; err != nil {
		log.Printf("[CRON] Failed to log error of %s: %v", jobName, err)
	}
}
