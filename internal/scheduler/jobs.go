package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/horizon/internal/calendar"
	"github.com/aristath/horizon/internal/run"
)

// jobTimeout bounds a scheduled job's execution.
const jobTimeout = 30 * time.Minute

// DailyRunJob runs the allocation pipeline for the most recent trading day.
type DailyRunJob struct {
	orchestrator *run.Orchestrator
	cal          *calendar.Calendar
	log          zerolog.Logger
}

// NewDailyRunJob creates the daily run job.
func NewDailyRunJob(orchestrator *run.Orchestrator, cal *calendar.Calendar, log zerolog.Logger) *DailyRunJob {
	return &DailyRunJob{
		orchestrator: orchestrator,
		cal:          cal,
		log:          log.With().Str("job", "daily_run").Logger(),
	}
}

// Name returns the job name.
func (j *DailyRunJob) Name() string { return "daily_run" }

// Run executes the pipeline for today, or the previous trading day when
// today is a weekend or holiday.
func (j *DailyRunJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	for !j.cal.IsTradingDay(asOf) {
		asOf = asOf.AddDate(0, 0, -1)
	}

	_, err := j.orchestrator.RunDate(ctx, asOf)
	return err
}

// Backup is the subset of the backup service the job needs.
type Backup interface {
	CreateAndUploadBackup(ctx context.Context) error
}

// BackupJob uploads a snapshot-database backup.
type BackupJob struct {
	backup Backup
	log    zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(backup Backup, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup: backup,
		log:    log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name.
func (j *BackupJob) Name() string { return "backup" }

// Run creates and uploads a backup.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.backup.CreateAndUploadBackup(ctx)
}
