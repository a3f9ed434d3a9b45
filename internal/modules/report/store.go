package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// TimestampLayout prefixes every stored report file name.
const TimestampLayout = "2006-01-02-150405"

// ErrInvalidName is returned by Load for names that are not plain file names.
var ErrInvalidName = errors.New("invalid report name")

// Uploader copies a document to remote object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// Store keeps reports as indented JSON files in a directory and optionally
// mirrors them to object storage.
type Store struct {
	dir    string
	remote Uploader
	log    zerolog.Logger
}

// NewStore creates a store rooted at dir. remote may be nil.
func NewStore(dir string, remote Uploader, log zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		remote: remote,
		log:    log.With().Str("component", "report_store").Logger(),
	}
}

// Dir returns the directory reports are written to.
func (s *Store) Dir() string { return s.dir }

// Save writes r and returns the file name it was stored under. A failed
// remote upload is logged and does not fail the save.
func (s *Store) Save(ctx context.Context, r *Report) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	name := fileName(r)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	s.log.Info().Str("report", name).Str("status", r.Status).Msg("Report saved")

	if s.remote != nil {
		if err := s.remote.Upload(ctx, "reports/"+name, bytes.NewReader(data), int64(len(data))); err != nil {
			s.log.Warn().Err(err).Str("report", name).Msg("Failed to upload report")
		}
	}
	return name, nil
}

func fileName(r *Report) string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s.json", r.GeneratedAt.Format(TimestampLayout), id)
}

// List returns stored report names, newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Load reads a stored report by name.
func (s *Store) Load(name string) (*Report, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", name, err)
	}
	return &r, nil
}
