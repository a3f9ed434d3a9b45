package clientdata

import (
	"github.com/rs/zerolog"
)

// Checkpointer truncates the write-ahead log of the cache database.
type Checkpointer interface {
	WALCheckpoint(mode string) error
}

// CleanupJob removes expired entries from all client data tables.
// It should be scheduled to run daily.
type CleanupJob struct {
	repo *Repository
	db   Checkpointer
	log  zerolog.Logger
}

// NewCleanupJob creates a new client data cleanup job. db may be nil.
func NewCleanupJob(repo *Repository, db Checkpointer, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		db:   db,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run removes all expired entries and checkpoints the WAL.
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired client data")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if j.db != nil {
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}

	j.log.Debug().Int64("total_deleted", totalDeleted).Msg("Client data cleanup completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
