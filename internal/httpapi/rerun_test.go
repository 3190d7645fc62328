package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/jobs"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
)

// outageClient fails every request holding line 2 until restored, and keeps
// the last input and tier sent for each line.
type outageClient struct {
	fakeClient

	mu       sync.Mutex
	restored bool
	inputs   map[int]string
	tiers    map[int]record.Tier
}

func (c *outageClient) Translate(_ context.Context, items []record.Record, _ config.RunConfig, tier record.Tier) ([]translator.Translation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputs == nil {
		c.inputs = make(map[int]string)
		c.tiers = make(map[int]record.Tier)
	}
	ret := make([]translator.Translation, 0, len(items))
	for _, item := range items {
		c.inputs[item.ID] = item.InputText()
		c.tiers[item.ID] = tier
		if item.ID == 2 && !c.restored {
			return nil, errors.New("service unavailable")
		}
		ret = append(ret, translator.Translation{ID: item.ID, TranslatedText: "T:" + item.InputText()})
	}
	return ret, nil
}

func (c *outageClient) restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restored = true
}

func (c *outageClient) last(id int) (string, record.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs[id], c.tiers[id]
}

// stalledClient never answers a translation until the run is cancelled.
type stalledClient struct{ fakeClient }

func (stalledClient) Translate(ctx context.Context, _ []record.Record, _ config.RunConfig, _ record.Tier) ([]translator.Translation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServer_RerunAfterApply(t *testing.T) {
	client := &outageClient{}
	srv, _ := newTestServerWith(t, client)

	settings := config.DefaultRunConfig()
	settings.SourceLang = "English"
	settings.BatchSize = 1
	settings.ProAllocation = 0
	settings.FlashAllocation = 100
	rec := do(t, srv, http.MethodPost, "/api/jobs", createJobRequest{FileName: "ep1.srt", Content: sampleSRT, Settings: &settings})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[jobs.Job](t, rec)
	waitStatus(t, srv, job.ID, jobs.StatusSuccess)

	rec = do(t, srv, http.MethodGet, "/api/jobs/"+job.ID+"/items?status=error", nil)
	failed := decode[[]record.Record](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].ID)

	rec = do(t, srv, http.MethodPost, "/api/jobs/"+job.ID+"/items/2/apply", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	client.restore()

	rec = do(t, srv, http.MethodPost, "/api/jobs/"+job.ID+"/run", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rerun := decode[jobs.Job](t, rec)
	assert.NotEqual(t, job.ID, rerun.ID)
	waitStatus(t, srv, rerun.ID, jobs.StatusSuccess)

	input, tier := client.last(2)
	assert.Equal(t, "Where is the river bank?", input)
	assert.Equal(t, record.TierQuality, tier)

	rec = do(t, srv, http.MethodGet, "/api/jobs/"+rerun.ID, nil)
	assert.Equal(t, job.ID, decode[map[string]any](t, rec)["rerun_of"])

	rec = do(t, srv, http.MethodGet, "/api/jobs/"+rerun.ID+"/items", nil)
	items := decode[[]record.Record](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, record.StatusDone, items[1].Status)
	assert.Equal(t, "T:Where is the river bank?", items[1].TranslatedText)
	assert.Equal(t, record.TierQuality, items[1].ModelUsed)
}

func TestServer_RerunConflicts(t *testing.T) {
	srv, _ := newTestServerWith(t, stalledClient{})
	job := createJob(t, srv)
	waitStatus(t, srv, job.ID, jobs.StatusRunning)

	rec := do(t, srv, http.MethodPost, "/api/jobs/"+job.ID+"/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/jobs/job-404/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitStatus(t, srv, job.ID, jobs.StatusCanceled)
}
