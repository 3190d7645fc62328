package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/service"
	"github.com/MimeLyc/tiered-sub-translator/internal/subtitle"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,000
Hello there.

2
00:00:03,000 --> 00:00:04,000
Where is the bank?
`

// prefixClient translates by prefixing the input and records the tier of
// every request.
type prefixClient struct {
	tiers []record.Tier
}

func (c *prefixClient) CheckContext(context.Context, []record.Record, config.RunConfig) ([]translator.Suggestion, error) {
	return nil, nil
}

func (c *prefixClient) Translate(_ context.Context, items []record.Record, _ config.RunConfig, tier record.Tier) ([]translator.Translation, error) {
	c.tiers = append(c.tiers, tier)
	ret := make([]translator.Translation, 0, len(items))
	for _, item := range items {
		ret = append(ret, translator.Translation{ID: item.ID, TranslatedText: "T:" + item.InputText()})
	}
	return ret, nil
}

func writeSample(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunTranslate_WritesOutput(t *testing.T) {
	input := writeSample(t, "ep1.srt", sampleSRT)
	settings := config.DefaultRunConfig()
	settings.TargetLang = "French"
	settings.ProAllocation = 0
	settings.FlashAllocation = 100

	client := &prefixClient{}
	var stdout, stderr bytes.Buffer
	summary, err := runTranslate(context.Background(), client, translateOptions{
		input:    input,
		settings: settings,
	}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Statuses[record.StatusDone])
	assert.Equal(t, []record.Tier{record.TierFast}, client.tiers)

	output := filepath.Join(filepath.Dir(input), "ep1.french.srt")
	got, err := subtitle.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, got.Cues, 2)
	assert.Equal(t, "T:Hello there.", got.Cues[0].Text)
	assert.Equal(t, "00:00:03,000", got.Cues[1].StartTime)

	assert.Contains(t, stdout.String(), "Lines")
	assert.Contains(t, stdout.String(), output)
	assert.Contains(t, stderr.String(), "Batch 1/1: 2/2 lines")
}

func TestRunTranslate_Errors(t *testing.T) {
	valid := config.DefaultRunConfig()
	invalid := valid
	invalid.BatchSize = 99

	tests := []struct {
		name     string
		input    string
		settings config.RunConfig
		errType  service.ErrorType
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.srt"), valid, service.ErrFileRead},
		{"wrong extension", writeSample(t, "ep1.txt", sampleSRT), valid, service.ErrFileRead},
		{"no cues", writeSample(t, "empty.srt", "not a subtitle"), valid, service.ErrParse},
		{"invalid settings", writeSample(t, "ep1.srt", sampleSRT), invalid, service.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := runTranslate(context.Background(), &prefixClient{}, translateOptions{
				input:    tt.input,
				settings: tt.settings,
			}, &out, &out)
			require.Error(t, err)
			assert.True(t, service.IsErrorType(err, tt.errType), "got %v", err)
		})
	}
}

func TestTranslateCommand_AppliesFlags(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("SETTINGS_FILE", "")
	t.Setenv("WATCH_DIR", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("PIPELINE_BATCH_DELAY_MS", "0")

	input := writeSample(t, "ep1.srt", sampleSRT)
	output := filepath.Join(t.TempDir(), "out", "ep1.de.srt")

	client := &prefixClient{}
	cmd := newRootCommandWith(&commandContext{
		newClient: func(config.LLMConfig) (translator.Client, error) { return client, nil },
	})
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"translate", input,
		"-o", output,
		"--target", "German",
		"--batch-size", "1",
		"--pro", "100",
	})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, []record.Tier{record.TierQuality, record.TierQuality}, client.tiers)
	_, err := os.Stat(output)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Batches")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tiered-sub-translator dev\n", out.String())
}
