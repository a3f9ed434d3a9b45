package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore() *memoryStore { return &memoryStore{objects: map[string][]byte{}} }

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]types.Object, error) {
	var out []types.Object
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(data)))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func untar(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	files := map[string][]byte{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[h.Name] = body
	}
	return files
}

func TestCreateAndUploadArchive(t *testing.T) {
	reports := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(reports, "2024-01-01-000000-a.json"), []byte(`{"id":"a"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(reports, "2024-01-02-000000-b.json"), []byte(`{"id":"b"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(reports, "notes.txt"), []byte("skip"), 0644))

	store := newMemoryStore()
	svc := NewReportArchiveService(store, reports, t.TempDir(), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 12, 30, 0, 0, time.UTC) }

	name, err := svc.CreateAndUploadArchive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "investsim-reports-2024-02-01-123000.tar.gz", name)

	files := untar(t, store.objects[name])
	assert.Equal(t, []byte(`{"id":"a"}`), files["2024-01-01-000000-a.json"])
	assert.Equal(t, []byte(`{"id":"b"}`), files["2024-01-02-000000-b.json"])
	assert.NotContains(t, files, "notes.txt")

	var meta ArchiveMetadata
	require.NoError(t, json.Unmarshal(files[metadataFilename], &meta))
	require.Len(t, meta.Reports, 2)
	assert.Equal(t, "2024-01-01-000000-a.json", meta.Reports[0].Filename)
	assert.True(t, strings.HasPrefix(meta.Reports[0].Checksum, "sha256:"))
}

func TestCreateAndUploadArchive_NothingToArchive(t *testing.T) {
	store := newMemoryStore()
	svc := NewReportArchiveService(store, filepath.Join(t.TempDir(), "none"), t.TempDir(), zerolog.Nop())
	name, err := svc.CreateAndUploadArchive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Empty(t, store.objects)
}

func TestRotateOldArchives(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	for _, day := range []int{1, 2, 3, 25, 28, 29} {
		key := archivePrefix + time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC).Format(archiveLayout) + archiveSuffix
		store.objects[key] = []byte("x")
	}
	store.objects[archivePrefix+"garbage"+archiveSuffix] = []byte("x")

	svc := NewReportArchiveService(store, t.TempDir(), t.TempDir(), zerolog.Nop())
	svc.now = func() time.Time { return now }

	archives, err := svc.ListArchives(context.Background())
	require.NoError(t, err)
	require.Len(t, archives, 6)
	assert.Equal(t, int64(24), archives[0].AgeHours)

	deleted, err := svc.RotateOldArchives(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	var left []string
	for k := range store.objects {
		left = append(left, k)
	}
	sort.Strings(left)
	assert.Equal(t, []string{
		archivePrefix + "2024-06-25-000000" + archiveSuffix,
		archivePrefix + "2024-06-28-000000" + archiveSuffix,
		archivePrefix + "2024-06-29-000000" + archiveSuffix,
		archivePrefix + "garbage" + archiveSuffix,
	}, left)

	deleted, err = svc.RotateOldArchives(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNewR2Client_RequiresCredentials(t *testing.T) {
	_, err := NewR2Client("acct", "", "secret", "bucket", zerolog.Nop())
	assert.Error(t, err)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", R2Endpoint("acct"))
}
