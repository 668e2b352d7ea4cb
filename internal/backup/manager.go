// Package backup writes SQL backup files on demand or on a cron schedule.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/config"
	"github.com/saltyorg/cartridges/internal/database"
)

// Setting keys
const (
	SettingSchedule = "backup.schedule"
	SettingDir      = "backup.dir"
	SettingRetain   = "backup.retain"
)

const (
	defaultDir    = "backups"
	defaultRetain = 7
	filePrefix    = "backup_cartridges_"
	fileSuffix    = ".sql"
)

// Store is the subset of the database used by the manager.
type Store interface {
	config.SettingsGetter
	SetSetting(key, value string) error
	WriteBackup(ctx context.Context, w io.Writer, now time.Time) error
	CreateBackupRun(ctx context.Context, run *database.BackupRun) error
}

// Config is the backup policy. An empty Schedule disables scheduled runs.
type Config struct {
	Schedule string
	Dir      string
	Retain   int // newest files kept, 0 keeps all
}

// Status reports the scheduler state for the settings page.
type Status struct {
	Running bool
	Config  Config
	NextRun *time.Time
	LastRun *time.Time
}

// Manager runs backups and owns the cron scheduler
type Manager struct {
	db          Store
	config      Config
	cron        *cron.Cron
	cronEntryID cron.EntryID
	lastRun     *time.Time
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	runMu       sync.Mutex
	now         func() time.Time
	onRun       func(*database.BackupRun)
}

// NewManager creates a backup manager; call Start to enable the schedule
func NewManager(db Store) *Manager {
	return &Manager{
		db:   db,
		cron: cron.New(),
		now:  time.Now,
		config: Config{
			Dir:    defaultDir,
			Retain: defaultRetain,
		},
	}
}

// SetOnRun registers a callback invoked after every backup attempt.
func (m *Manager) SetOnRun(fn func(*database.BackupRun)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRun = fn
}

// Start loads the policy and starts the scheduler
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.loadConfigFromDB()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.cron.Start()
	m.running = true

	if m.config.Schedule != "" {
		if err := m.updateSchedule(m.config.Schedule); err != nil {
			log.Warn().Err(err).Str("schedule", m.config.Schedule).Msg("Failed to set backup schedule")
		}
	}

	log.Info().
		Str("schedule", m.config.Schedule).
		Str("dir", m.config.Dir).
		Int("retain", m.config.Retain).
		Msg("Backup manager started")

	return nil
}

// Stop cancels a running scheduled backup, stops the scheduler and waits
// for the job to return
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	if m.cancel != nil {
		m.cancel()
	}
	stopped := m.cron.Stop()
	m.mu.Unlock()

	// The running job takes m.mu to record its outcome
	<-stopped.Done()
	log.Info().Msg("Backup manager stopped")
}

// Status returns the scheduler state
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{Running: m.running, Config: m.config, LastRun: m.lastRun}
	if m.cronEntryID != 0 {
		if next := m.cron.Entry(m.cronEntryID).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}

// GetConfig returns the current policy
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// UpdateConfig validates, stores and applies a new policy
func (m *Manager) UpdateConfig(cfg Config) error {
	cfg.Schedule = strings.TrimSpace(cfg.Schedule)
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	if cfg.Dir == "" {
		cfg.Dir = defaultDir
	}
	if cfg.Retain < 0 {
		return fmt.Errorf("%w: retention cannot be negative", database.ErrInvalidInput)
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("%w: invalid schedule %q: %v", database.ErrInvalidInput, cfg.Schedule, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.saveConfigToDB(cfg); err != nil {
		return err
	}
	m.config = cfg

	if cfg.Schedule == "" {
		m.removeSchedule()
	} else if err := m.updateSchedule(cfg.Schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	log.Info().
		Str("schedule", cfg.Schedule).
		Str("dir", cfg.Dir).
		Int("retain", cfg.Retain).
		Msg("Backup configuration updated")
	return nil
}

// RunNow writes a backup file into the configured directory, records the
// outcome and prunes old files.
func (m *Manager) RunNow(ctx context.Context, trigger string) (*database.BackupRun, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	cfg := m.GetConfig()
	now := m.now()
	run := &database.BackupRun{
		FileName:      database.BackupFileName(now),
		TriggerSource: trigger,
		CreatedAt:     now.UTC(),
	}

	size, err := m.writeFile(ctx, cfg.Dir, run.FileName, now)
	run.SizeBytes = size
	if err != nil {
		run.Error = err.Error()
	}

	if recErr := m.db.CreateBackupRun(context.WithoutCancel(ctx), run); recErr != nil {
		log.Error().Err(recErr).Msg("Failed to record backup run")
	}

	m.mu.Lock()
	m.lastRun = &now
	onRun := m.onRun
	m.mu.Unlock()

	if onRun != nil {
		onRun(run)
	}

	if err != nil {
		log.Error().Err(err).Str("file", run.FileName).Str("trigger", trigger).Msg("Backup failed")
		return run, err
	}

	log.Info().
		Str("file", run.FileName).
		Int64("bytes", size).
		Str("trigger", trigger).
		Msg("Backup written")

	if removed, err := Prune(cfg.Dir, cfg.Retain); err != nil {
		log.Warn().Err(err).Msg("Failed to prune old backups")
	} else if len(removed) > 0 {
		log.Debug().Strs("files", removed).Msg("Pruned old backups")
	}

	return run, nil
}

func (m *Manager) writeFile(ctx context.Context, dir, name string, now time.Time) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.db.WriteBackup(ctx, tmp, now); err != nil {
		tmp.Close()
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return 0, fmt.Errorf("failed to finalize backup file: %w", err)
	}
	return info.Size(), nil
}

// Prune deletes all but the newest retain backup files in dir. It returns
// the names of the deleted files. retain <= 0 keeps everything.
func Prune(dir string, retain int) ([]string, error) {
	if retain <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			files = append(files, name)
		}
	}
	if len(files) <= retain {
		return nil, nil
	}

	// Timestamped names sort chronologically.
	slices.Sort(files)
	stale := files[:len(files)-retain]
	for _, name := range stale {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

// updateSchedule replaces the cron entry
func (m *Manager) updateSchedule(schedule string) error {
	m.removeSchedule()

	id, err := m.cron.AddFunc(schedule, m.scheduledRun)
	if err != nil {
		return err
	}

	m.cronEntryID = id
	log.Info().Str("schedule", schedule).Msg("Backup schedule updated")
	return nil
}

func (m *Manager) removeSchedule() {
	if m.cronEntryID != 0 {
		m.cron.Remove(m.cronEntryID)
		m.cronEntryID = 0
	}
}

// scheduledRun is called by cron
func (m *Manager) scheduledRun() {
	m.mu.RLock()
	parent := m.ctx
	m.mu.RUnlock()
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, 10*time.Minute)
	defer cancel()

	if _, err := m.RunNow(ctx, database.BackupTriggerSchedule); err != nil {
		log.Error().Err(err).Msg("Scheduled backup failed")
	}
}

func (m *Manager) loadConfigFromDB() {
	loader := config.NewLoader(m.db)
	m.config.Schedule = loader.String(SettingSchedule, "")
	m.config.Dir = loader.String(SettingDir, defaultDir)
	m.config.Retain = loader.Int(SettingRetain, defaultRetain)
}

func (m *Manager) saveConfigToDB(cfg Config) error {
	if err := m.db.SetSetting(SettingSchedule, cfg.Schedule); err != nil {
		return err
	}
	if err := m.db.SetSetting(SettingDir, cfg.Dir); err != nil {
		return err
	}
	return m.db.SetSetting(SettingRetain, strconv.Itoa(cfg.Retain))
}
