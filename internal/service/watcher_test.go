package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/tiered-sub-translator/internal/jobs"
)

func TestWatcher_ScanQueuesNewFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(sampleSRT), 0o644))
		return p
	}
	fresh := write("season1/ep1.srt")
	write("ep2.srt")
	write("ep2.vietnamese.srt")
	write("notes.txt")

	svc := newTestService(t, &echoClient{}, nil)
	w := NewWatcher(svc, dir, "*/10 * * * *")

	queued, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	list := svc.Jobs()
	require.Len(t, list, 1)
	assert.Equal(t, SourceWatch, list[0].Source)
	assert.Equal(t, fresh, list[0].Payload.SourcePath)
	assert.Equal(t, filepath.Join(dir, "season1", "ep1.vietnamese.srt"), list[0].Payload.OutputPath)

	queued, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, queued, "unchanged files are not queued twice")

	svc.Start()
	defer svc.Stop()
	waitJob(t, svc, list[0].ID, jobs.StatusSuccess)
	_, err = os.Stat(list[0].Payload.OutputPath)
	require.NoError(t, err)

	status := w.Status(time.Now())
	assert.True(t, status.Enabled)
	assert.Equal(t, 1, status.Queued)
	require.NotNil(t, status.Trigger)
	assert.False(t, status.LastScan.IsZero())
}

func TestWatcher_MissingDir(t *testing.T) {
	svc := newTestService(t, &echoClient{}, nil)
	w := NewWatcher(svc, filepath.Join(t.TempDir(), "missing"), "*/10 * * * *")

	_, err := w.Scan(context.Background())
	assert.True(t, IsErrorType(err, ErrFileRead))
}

func TestWatcher_ScheduleRejectsBadCron(t *testing.T) {
	svc := newTestService(t, &echoClient{}, nil)
	w := NewWatcher(svc, t.TempDir(), "not a cron")

	err := w.Schedule(context.Background())
	assert.True(t, IsErrorType(err, ErrConfig))
}
