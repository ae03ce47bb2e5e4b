package db

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboucasericka/Sistema-sub001/internal/config"
)

func TestPerformBackup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Insert(context.Background(), newAppt("10:00", "11:00"), ""))

	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	restored, err := NewDB(path, brt, &logger)
	require.NoError(t, err)
	defer restored.Close()

	busy, err := restored.FindOverlapping(context.Background(), 1, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}

func TestCleanupOldBackups(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "backup_20240101_000000.db")
	fresh := filepath.Join(dir, "backup_20250101_000000.db")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	logger := zerolog.New(io.Discard)
	svc := NewBackupService(nil, config.BackupConfig{StoragePath: dir, RetentionDays: 7}, &logger)

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
