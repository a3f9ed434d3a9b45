package report

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (u *recordingUploader) Upload(_ context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	u.keys = append(u.keys, key)
	u.bodies = append(u.bodies, data)
	return u.err
}

func sampleReport(at time.Time, id string) *Report {
	v := 0.1
	return &Report{
		ID:          id,
		GeneratedAt: at,
		Status:      "optimal",
		Tickers:     []string{"A"},
		Value:       &v,
		Allocation:  map[string]float64{"A": 1},
		Metrics:     map[string]string{},
		Constraints: map[string]string{},
	}
}

func TestStore_SaveListLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	up := &recordingUploader{}
	s := NewStore(dir, up, zerolog.Nop())

	older := sampleReport(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), "11111111-aaaa")
	newer := sampleReport(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), "22222222-bbbb")

	name, err := s.Save(context.Background(), older)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01-100000-11111111.json", name)
	_, err = s.Save(context.Background(), newer)
	require.NoError(t, err)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-02-100000-22222222.json", "2024-03-01-100000-11111111.json"}, names)

	loaded, err := s.Load(name)
	require.NoError(t, err)
	assert.Equal(t, older.ID, loaded.ID)
	assert.Equal(t, older.Allocation, loaded.Allocation)
	assert.InDelta(t, 0.1, *loaded.Value, 1e-12)

	require.Len(t, up.keys, 2)
	assert.Equal(t, "reports/"+name, up.keys[0])
	local, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, local, up.bodies[0])
}

func TestStore_UploadFailureIsNotFatal(t *testing.T) {
	s := NewStore(t.TempDir(), &recordingUploader{err: errors.New("bucket unavailable")}, zerolog.Nop())
	name, err := s.Save(context.Background(), sampleReport(time.Now().UTC(), "abc"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.Dir(), name))
	assert.NoError(t, err)
}

func TestStore_ListMissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"), nil, zerolog.Nop())
	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_LoadRejectsPaths(t *testing.T) {
	s := NewStore(t.TempDir(), nil, zerolog.Nop())
	for _, name := range []string{"../secret.json", "..", "a/b.json"} {
		_, err := s.Load(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}
