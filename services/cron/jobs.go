package cron

import (
	"fmt"
	"log"
	"time"

	"github.com/tenantcore/configvault/model"
)

const (
	// staleCredentialAge is how long a credential may sit unused before the
	// daily report flags it for review
	staleCredentialAge = 90 * 24 * time.Hour

	// cronLogRetention is how long cron execution logs are kept
	cronLogRetention = 30 * 24 * time.Hour
)

// ReportStaleCredentials logs every secret that has not been used within
// staleCredentialAge. Report only; rotation is an operator decision.
func (m *CronManager) ReportStaleCredentials() {
	startedAt := time.Now()
	jobName := "stale_credential_report"

	cutoff := startedAt.Add(-staleCredentialAge)

	var stale []model.Secret
	err := m.db.Where("last_used_at IS NOT NULL AND last_used_at < ?", cutoff).
		Or("last_used_at IS NULL AND created_at < ?", cutoff).
		Order("name ASC").
		Find(&stale).Error
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to query secrets: %w", err), startedAt)
		return
	}

	for _, secret := range stale {
		log.Printf("[CRON] Stale credential: %s (provider=%s, scope=%s)", secret.Name, secret.Provider, secret.Scope)
	}

	m.logJobComplete(jobName, fmt.Sprintf("%d stale credentials", len(stale)), startedAt)
}

// CleanupCronJobLogs prunes execution logs older than the retention window
func (m *CronManager) CleanupCronJobLogs() {
	startedAt := time.Now()
	jobName := "cleanup_cron_job_logs"

	cutoff := startedAt.Add(-cronLogRetention)

	result := m.db.Unscoped().Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to delete old logs: %w", result.Error), startedAt)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("deleted %d log rows", result.RowsAffected), startedAt)
}
