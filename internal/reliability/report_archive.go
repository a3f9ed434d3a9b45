// Package reliability ships stored reports to Cloudflare R2.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix    = "investsim-reports-"
	archiveSuffix    = ".tar.gz"
	archiveLayout    = "2006-01-02-150405"
	metadataFilename = "archive-metadata.json"
	// minArchivesToKeep survive rotation regardless of age.
	minArchivesToKeep = 3
)

// ArchiveMetadata is stored inside every archive.
type ArchiveMetadata struct {
	Timestamp time.Time     `json:"timestamp"`
	Reports   []ArchiveFile `json:"reports"`
}

// ArchiveFile describes one report in an archive.
type ArchiveFile struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// ArchiveInfo describes an archive stored in the bucket.
type ArchiveInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// ReportArchiveService bundles the report directory into a tar.gz and keeps a
// rotating set of those bundles in object storage.
type ReportArchiveService struct {
	store      ObjectStore
	reportsDir string
	stagingDir string
	now        func() time.Time
	log        zerolog.Logger
}

// NewReportArchiveService creates the service. Archives are staged under
// dataDir before upload.
func NewReportArchiveService(store ObjectStore, reportsDir, dataDir string, log zerolog.Logger) *ReportArchiveService {
	return &ReportArchiveService{
		store:      store,
		reportsDir: reportsDir,
		stagingDir: filepath.Join(dataDir, "r2-staging"),
		now:        time.Now,
		log:        log.With().Str("service", "report_archive").Logger(),
	}
}

// CreateAndUploadArchive archives every stored report and uploads the bundle.
// It returns the archive name, or "" when there was nothing to archive.
func (s *ReportArchiveService) CreateAndUploadArchive(ctx context.Context) (string, error) {
	start := s.now()

	reports, err := s.reportFiles()
	if err != nil {
		return "", err
	}
	if len(reports) == 0 {
		s.log.Info().Msg("No reports to archive")
		return "", nil
	}

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(s.stagingDir)

	metadata := ArchiveMetadata{Timestamp: start.UTC(), Reports: make([]ArchiveFile, 0, len(reports))}
	for _, name := range reports {
		path := filepath.Join(s.reportsDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", name, err)
		}
		checksum, err := calculateChecksum(path)
		if err != nil {
			return "", fmt.Errorf("failed to calculate checksum for %s: %w", name, err)
		}
		metadata.Reports = append(metadata.Reports, ArchiveFile{
			Filename:  name,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(s.stagingDir, metadataFilename)
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := archivePrefix + start.UTC().Format(archiveLayout) + archiveSuffix
	archivePath := filepath.Join(s.stagingDir, archiveName)
	files := map[string]string{metadataFilename: metadataPath}
	for _, name := range reports {
		files[name] = filepath.Join(s.reportsDir, name)
	}
	if err := createArchive(archivePath, files); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()
	info, err := archive.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, archiveName, archive, info.Size()); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Dur("duration", s.now().Sub(start)).
		Str("archive", archiveName).
		Int("reports", len(reports)).
		Int64("size_bytes", info.Size()).
		Msg("Report archive uploaded")
	return archiveName, nil
}

func (s *ReportArchiveService) reportFiles() ([]string, error) {
	entries, err := os.ReadDir(s.reportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListArchives lists the archives in the bucket, newest first.
func (s *ReportArchiveService) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	now := s.now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		name := *obj.Key
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
		ts, err := time.Parse(archiveLayout, stamp)
		if err != nil {
			s.log.Warn().Str("filename", name).Msg("Failed to parse timestamp from archive name")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		archives = append(archives, ArchiveInfo{
			Filename:  name,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})
	return archives, nil
}

// RotateOldArchives deletes archives older than retentionDays, always keeping
// the newest three. A retention of 0 keeps everything.
func (s *ReportArchiveService) RotateOldArchives(ctx context.Context, retentionDays int) (int, error) {
	archives, err := s.ListArchives(ctx)
	if err != nil {
		return 0, err
	}
	if retentionDays <= 0 || len(archives) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, a := range archives[minArchivesToKeep:] {
		if !a.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, a.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", a.Filename).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Archive rotation completed")
	return deleted, nil
}

func calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata ArchiveMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes a tar.gz holding files, keyed by name in the archive.
func createArchive(archivePath string, files map[string]string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := addFileToArchive(tw, files[name], name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
