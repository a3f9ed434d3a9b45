package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// DefaultMinFreeBytes is the free space below which archiving is refused.
const DefaultMinFreeBytes = 500 * 1024 * 1024

// ArchiveJob uploads a fresh report archive and rotates old ones.
type ArchiveJob struct {
	archives      *ReportArchiveService
	dataDir       string
	retentionDays int
	minFreeBytes  uint64
	timeout       time.Duration
	log           zerolog.Logger
}

// NewArchiveJob creates the job. Archives older than retentionDays are
// deleted after each upload.
func NewArchiveJob(archives *ReportArchiveService, dataDir string, retentionDays int, log zerolog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archives:      archives,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		minFreeBytes:  DefaultMinFreeBytes,
		timeout:       10 * time.Minute,
		log:           log.With().Str("job", "report_archive").Logger(),
	}
}

// Run executes the archive job
func (j *ArchiveJob) Run() error {
	j.log.Info().Msg("Starting report archive")
	startTime := time.Now()

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	name, err := j.archives.CreateAndUploadArchive(ctx)
	if err != nil {
		return err
	}
	if name == "" {
		j.log.Info().Msg("No reports to archive")
		return nil
	}

	deleted, err := j.archives.RotateOldArchives(ctx, j.retentionDays)
	if err != nil {
		// the upload already succeeded
		j.log.Error().Err(err).Msg("Archive rotation failed")
	}

	j.log.Info().
		Str("archive", name).
		Int("rotated", deleted).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Report archive completed")
	return nil
}

// Name returns the job name for scheduler
func (j *ArchiveJob) Name() string {
	return "report_archive"
}

// checkDiskSpace refuses to stage an archive on a nearly full volume.
func (j *ArchiveJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().
		Float64("available_gb", availableGB).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if usage.Free < j.minFreeBytes {
		return fmt.Errorf("only %.2f GB free, skipping archive", availableGB)
	}
	if usage.UsedPercent > 90 {
		j.log.Warn().Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}
