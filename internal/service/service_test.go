package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
	"github.com/MimeLyc/tiered-sub-translator/internal/jobs"
	"github.com/MimeLyc/tiered-sub-translator/internal/persistence"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,000
Hello there.

2
00:00:03,000 --> 00:00:04,000
Where is the bank?

3
00:00:05,000 --> 00:00:06,500
See you tomorrow.
`

// echoClient translates by prefixing the input and records the source
// language it was asked to translate from.
type echoClient struct {
	mu          sync.Mutex
	sourceLangs []string
	suggest     map[int]string
	block       bool
}

func (c *echoClient) CheckContext(_ context.Context, items []record.Record, _ config.RunConfig) ([]translator.Suggestion, error) {
	var ret []translator.Suggestion
	for _, item := range items {
		if s, ok := c.suggest[item.ID]; ok {
			ret = append(ret, translator.Suggestion{ID: item.ID, Suggestion: s})
		}
	}
	return ret, nil
}

func (c *echoClient) Translate(ctx context.Context, items []record.Record, cfg config.RunConfig, _ record.Tier) ([]translator.Translation, error) {
	c.mu.Lock()
	c.sourceLangs = append(c.sourceLangs, cfg.SourceLang)
	c.mu.Unlock()
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ret := make([]translator.Translation, 0, len(items))
	for _, item := range items {
		ret = append(ret, translator.Translation{ID: item.ID, TranslatedText: "T:" + item.InputText()})
	}
	return ret, nil
}

func (c *echoClient) langs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sourceLangs...)
}

func newTestService(t *testing.T, client translator.Client, history *persistence.SQLiteStore) *Service {
	t.Helper()
	settings, err := config.NewSettingsStore("", config.Settings{Run: config.DefaultRunConfig()})
	require.NoError(t, err)
	return New(client, settings, history, WithBatchDelay(0))
}

func waitJob(t *testing.T, svc *Service, id string, status jobs.Status) *JobDetails {
	t.Helper()
	var details *JobDetails
	require.Eventually(t, func() bool {
		d, err := svc.Job(id)
		if err != nil {
			return false
		}
		details = d
		return d.Status == status
	}, 3*time.Second, 10*time.Millisecond)
	return details
}

func TestService_SubmitRunsPipeline(t *testing.T) {
	history, err := persistence.NewSQLiteStore(persistence.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	svc := newTestService(t, &echoClient{}, history)
	svc.Start()
	defer svc.Stop()

	out := filepath.Join(t.TempDir(), "out", "ep1.vietnamese.srt")
	settings := config.DefaultRunConfig()
	settings.SourceLang = "English"
	job, created, err := svc.Submit(SubmitRequest{FileName: "ep1.srt", Content: sampleSRT, OutputPath: out, Settings: &settings})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, SourceUpload, job.Source)

	details := waitJob(t, svc, job.ID, jobs.StatusSuccess)
	assert.Equal(t, 3, details.Lines)
	assert.Equal(t, 3, details.Counts[record.StatusDone])
	require.NotNil(t, details.Summary)
	assert.Equal(t, 3, details.Summary.Total)
	require.NotNil(t, details.Progress)
	assert.Equal(t, 100.0, details.Progress.Percent)

	items, err := svc.Items(job.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "T:Where is the bank?", items[1].TranslatedText)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(written), "T:See you tomorrow.")

	name, content, err := svc.Output(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "ep1.vietnamese.srt", name)
	assert.Equal(t, string(written), content)

	entries, err := svc.Logs(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "Loaded ep1.srt with 3 subtitles.", entries[0].Message)
	assert.Equal(t, "Wrote "+out, entries[len(entries)-1].Message)

	stored, err := history.ListLogs(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, len(entries), len(stored))

	require.Eventually(t, func() bool {
		counts, err := svc.Health(context.Background())
		return err == nil && counts[string(jobs.StatusSuccess)] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestService_SubmitRejectsBadInput(t *testing.T) {
	svc := newTestService(t, &echoClient{}, nil)

	_, _, err := svc.Submit(SubmitRequest{FileName: "empty.srt", Content: "not a subtitle"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrParse))

	_, _, err = svc.Submit(SubmitRequest{Content: sampleSRT})
	assert.True(t, IsErrorType(err, ErrValidation))

	bad := config.DefaultRunConfig()
	bad.BatchSize = 51
	_, _, err = svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT, Settings: &bad})
	assert.True(t, IsErrorType(err, ErrValidation))

	assert.Empty(t, svc.Jobs())
}

func TestService_SubmitDedupesSourcePath(t *testing.T) {
	svc := newTestService(t, &echoClient{}, nil)

	first, created, err := svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT, SourcePath: "/subs/a.srt"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT, SourcePath: "/subs/a.srt"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	japanese := config.DefaultRunConfig()
	japanese.TargetLang = "Japanese"
	third, created, err := svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT, SourcePath: "/subs/a.srt", Settings: &japanese})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestService_ApplySuggestion(t *testing.T) {
	client := &echoClient{suggest: map[int]string{2: "Where is the river bank?"}}
	svc := newTestService(t, client, nil)
	svc.Start()
	defer svc.Stop()

	settings := config.DefaultRunConfig()
	settings.SourceLang = "English"
	job, _, err := svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT, Settings: &settings})
	require.NoError(t, err)
	waitJob(t, svc, job.ID, jobs.StatusSuccess)

	rec, changed, err := svc.ApplySuggestion(job.ID, 1)
	require.NoError(t, err)
	assert.False(t, changed, "no suggestion to apply")
	assert.False(t, rec.IsContextApplied)

	rec, changed, err = svc.ApplySuggestion(job.ID, 2)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, rec.IsContextApplied)
	assert.Equal(t, "Where is the bank?", rec.OriginalText)

	_, changed, err = svc.ApplySuggestion(job.ID, 2)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = svc.ApplySuggestion(job.ID, 99)
	assert.True(t, IsErrorType(err, ErrNotFound))
	_, _, err = svc.ApplySuggestion("job-404", 1)
	assert.True(t, IsErrorType(err, ErrNotFound))
}

func TestService_DetectsSourceLanguage(t *testing.T) {
	client := &echoClient{}
	svc := newTestService(t, client, nil)
	svc.Start()
	defer svc.Stop()

	content := "1\n00:00:01,000 --> 00:00:02,000\nこんにちは、今日はとても良い天気ですね。\n\n" +
		"2\n00:00:03,000 --> 00:00:04,000\n明日また会いましょう。本当にありがとうございました。\n"
	job, _, err := svc.Submit(SubmitRequest{FileName: "jp.srt", Content: content})
	require.NoError(t, err)

	details := waitJob(t, svc, job.ID, jobs.StatusSuccess)
	assert.Equal(t, "Japanese", details.SourceLanguage)
	for _, lang := range client.langs() {
		assert.Equal(t, "Japanese", lang)
	}
}

func TestService_CancelPending(t *testing.T) {
	svc := newTestService(t, &echoClient{}, nil)

	job, _, err := svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT})
	require.NoError(t, err)

	events, stop, err := svc.Subscribe(job.ID, 8)
	require.NoError(t, err)
	defer stop()

	canceled, err := svc.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCanceled, canceled.Status)

	var kinds []eventlog.EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []eventlog.EventKind{eventlog.EventLog, eventlog.EventComplete}, kinds)

	_, err = svc.Cancel(job.ID)
	assert.True(t, IsErrorType(err, ErrConflict))
	_, err = svc.Cancel("job-404")
	assert.True(t, IsErrorType(err, ErrNotFound))
}

func TestService_CancelRunning(t *testing.T) {
	client := &echoClient{block: true}
	svc := newTestService(t, client, nil)
	svc.Start()
	defer svc.Stop()

	job, _, err := svc.Submit(SubmitRequest{FileName: "a.srt", Content: sampleSRT})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(client.langs()) > 0 }, 3*time.Second, 10*time.Millisecond)

	_, err = svc.Cancel(job.ID)
	require.NoError(t, err)
	waitJob(t, svc, job.ID, jobs.StatusCanceled)

	items, err := svc.Items(job.ID)
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEqual(t, record.StatusDone, item.Status)
	}
}

func TestService_UpdateSettings(t *testing.T) {
	svc := newTestService(t, &echoClient{}, nil)

	next := svc.Settings()
	next.Run.TargetLang = "Korean"
	saved, err := svc.UpdateSettings(next)
	require.NoError(t, err)
	assert.Equal(t, "Korean", saved.Run.TargetLang)
	assert.Equal(t, "Korean", svc.Settings().Run.TargetLang)

	next.Run.ProAllocation = 140
	_, err = svc.UpdateSettings(next)
	assert.True(t, IsErrorType(err, ErrValidation))
	assert.True(t, strings.Contains(Advice(err), "allocations"))
}
