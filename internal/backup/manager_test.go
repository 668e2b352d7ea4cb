package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/cartridges/internal/database"
)

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(filepath.Join(t.TempDir(), "backup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.Empty(t, database.SchemaErrors(db.EnsureSchema(ctx)))
	require.NoError(t, db.Migrate(ctx))
	db.SeedReferenceData(ctx)
	return db
}

func TestRunNow_WritesAndRecords(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	dir := filepath.Join(t.TempDir(), "out")

	m := NewManager(db)
	require.NoError(t, m.UpdateConfig(Config{Dir: dir, Retain: 3}))
	m.now = func() time.Time { return time.Date(2026, 10, 18, 8, 0, 0, 0, time.Local) }
	var notified *database.BackupRun
	m.SetOnRun(func(r *database.BackupRun) { notified = r })

	run, err := m.RunNow(ctx, database.BackupTriggerManual)
	require.NoError(t, err)
	assert.Same(t, run, notified)
	assert.Equal(t, "backup_cartridges_20261018_080000.sql", run.FileName)
	assert.Positive(t, run.SizeBytes)

	data, err := os.ReadFile(filepath.Join(dir, run.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "INSERT INTO manufacturers (id, name) VALUES (1, 'Epson');")

	runs, err := db.ListBackupRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.BackupTriggerManual, runs[0].TriggerSource)
	assert.False(t, runs[0].Failed())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temporary file left behind: %s", e.Name())
	}
}

func TestRunNow_PrunesOldFiles(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	dir := t.TempDir()

	m := NewManager(db)
	require.NoError(t, m.UpdateConfig(Config{Dir: dir, Retain: 2}))

	base := time.Date(2026, 10, 18, 8, 0, 0, 0, time.Local)
	for i := range 4 {
		ts := base.Add(time.Duration(i) * time.Hour)
		m.now = func() time.Time { return ts }
		_, err := m.RunNow(ctx, database.BackupTriggerSchedule)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{
		"backup_cartridges_20261018_100000.sql",
		"backup_cartridges_20261018_110000.sql",
	}, names)
}

func TestPrune_KeepAll(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"backup_cartridges_1.sql", "backup_cartridges_2.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}

	removed, err := Prune(dir, 0)
	require.NoError(t, err)
	assert.Empty(t, removed)

	removed, err = Prune(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup_cartridges_1.sql"}, removed)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestUpdateConfig_Schedule(t *testing.T) {
	db := newTestStore(t)
	m := NewManager(db)
	require.NoError(t, m.Start())
	defer m.Stop()

	assert.Nil(t, m.Status().NextRun, "disabled by default")

	err := m.UpdateConfig(Config{Schedule: "not a cron", Dir: "x"})
	assert.ErrorIs(t, err, database.ErrInvalidInput)

	require.NoError(t, m.UpdateConfig(Config{Schedule: "0 3 * * *", Dir: t.TempDir(), Retain: 5}))
	st := m.Status()
	require.NotNil(t, st.NextRun)
	assert.Equal(t, 3, st.NextRun.Hour())

	stored, err := db.GetSetting(SettingSchedule)
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", stored)

	require.NoError(t, m.UpdateConfig(Config{Schedule: "", Dir: t.TempDir()}))
	assert.Nil(t, m.Status().NextRun)
}

func TestStart_LoadsStoredConfig(t *testing.T) {
	db := newTestStore(t)
	require.NoError(t, db.SetSetting(SettingSchedule, "@daily"))
	require.NoError(t, db.SetSetting(SettingRetain, "3"))

	m := NewManager(db)
	require.NoError(t, m.Start())
	defer m.Stop()

	cfg := m.GetConfig()
	assert.Equal(t, "@daily", cfg.Schedule)
	assert.Equal(t, 3, cfg.Retain)
	assert.Equal(t, defaultDir, cfg.Dir)
	assert.NotNil(t, m.Status().NextRun)
}

// slowStore blocks in WriteBackup until the context ends or a long delay
// passes, so a scheduled run is in flight when the manager stops.
type slowStore struct {
	mu       sync.Mutex
	settings map[string]string
	setErr   error
	runs     []*database.BackupRun
	entered  chan struct{}
	once     sync.Once
}

func newSlowStore() *slowStore {
	return &slowStore{settings: map[string]string{}, entered: make(chan struct{})}
}

func (s *slowStore) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *slowStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.settings[key] = value
	return nil
}

func (s *slowStore) WriteBackup(ctx context.Context, w io.Writer, now time.Time) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
		_, err := io.WriteString(w, "-- backup\n")
		return err
	}
}

func (s *slowStore) CreateBackupRun(ctx context.Context, run *database.BackupRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *slowStore) recorded() []*database.BackupRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.runs)
}

func TestStop_CancelsScheduledRun(t *testing.T) {
	store := newSlowStore()
	store.settings[SettingSchedule] = "@every 1s"
	store.settings[SettingDir] = t.TempDir()

	m := NewManager(store)
	require.NoError(t, m.Start())

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		m.Stop()
		t.Fatal("scheduled backup never started")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a scheduled backup was running")
	}

	assert.False(t, m.Status().Running)
	runs := store.recorded()
	require.NotEmpty(t, runs, "interrupted run is still recorded")
	assert.True(t, runs[0].Failed())
	assert.Contains(t, runs[0].Error, context.Canceled.Error())
	assert.Equal(t, database.BackupTriggerSchedule, runs[0].TriggerSource)

	// Stopping twice is a no-op
	m.Stop()
}

func TestUpdateConfig_KeepsPolicyWhenSaveFails(t *testing.T) {
	store := newSlowStore()
	m := NewManager(store)
	before := m.GetConfig()

	store.setErr = errors.New("disk full")
	err := m.UpdateConfig(Config{Schedule: "@daily", Dir: t.TempDir(), Retain: 2})
	require.Error(t, err)

	assert.Equal(t, before, m.GetConfig())
	assert.Nil(t, m.Status().NextRun)
}
