package database

import (
	"context"
	"testing"
	"time"
)

func TestSettings_RoundTripAndDefaults(t *testing.T) {
	db := newTestDB(t)

	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("failed to initialize defaults: %v", err)
	}

	got, err := db.GetSetting("backup.dir")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "backups" {
		t.Errorf("backup.dir = %q, want %q", got, "backups")
	}

	if err := db.SetSetting("backup.dir", "/var/backups"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if got, _ := db.GetSetting("backup.dir"); got != "/var/backups" {
		t.Errorf("defaults overwrote an edited value: %q", got)
	}

	missing, err := db.GetSetting("does.not.exist")
	if err != nil || missing != "" {
		t.Errorf("missing key = %q, %v; want empty, nil", missing, err)
	}

	all, err := db.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings: %v", err)
	}
	if len(all) != len(DefaultSettings) {
		t.Errorf("got %d settings, want %d", len(all), len(DefaultSettings))
	}
}

func TestBackupRuns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	runs := []*BackupRun{
		{FileName: "a.sql", SizeBytes: 10, TriggerSource: BackupTriggerManual, CreatedAt: base},
		{FileName: "b.sql", TriggerSource: BackupTriggerSchedule, Error: "disk full", CreatedAt: base.Add(time.Hour)},
	}
	for _, r := range runs {
		if err := db.CreateBackupRun(ctx, r); err != nil {
			t.Fatalf("CreateBackupRun: %v", err)
		}
		if r.ID == 0 {
			t.Errorf("run %s: id not set", r.FileName)
		}
	}

	list, err := db.ListBackupRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListBackupRuns: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d runs, want 2", len(list))
	}
	if list[0].FileName != "b.sql" || !list[0].Failed() {
		t.Errorf("newest run = %+v, want failed b.sql", list[0])
	}
	if list[1].Failed() || list[1].SizeBytes != 10 {
		t.Errorf("oldest run = %+v, want successful a.sql of 10 bytes", list[1])
	}
}
