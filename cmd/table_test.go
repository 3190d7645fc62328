package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MimeLyc/tiered-sub-translator/internal/pipeline"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
)

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, [][]string{{"x"}}, nil))

	out := renderTable([]string{"Name", "Count"}, [][]string{{"alpha", "1"}, {"beta"}}, []columnAlignment{alignLeft, alignRight})
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "╭"))
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
}

func TestSummaryTable(t *testing.T) {
	assert.Empty(t, summaryTable(nil, ""))

	out := summaryTable(&pipeline.Summary{
		Total:            12,
		Batches:          2,
		Statuses:         map[record.Status]int{record.StatusDone: 11, record.StatusError: 1},
		Tiers:            map[record.Tier]int{record.TierFast: 8, record.TierQuality: 3},
		FailedBatches:    1,
		RecoveredBatches: 0,
		Duration:         1500 * time.Millisecond,
		Cancelled:        true,
	}, "ep1.vietnamese.srt")

	for _, want := range []string{"Status done", "Status error", "Tier quality", "Failed batches", "1.5s", "Cancelled", "ep1.vietnamese.srt"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Status pending")
}
