package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunConfig_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        RunConfig
		flash     int
		pro       int
		batchSize int
	}{
		{"empty gets defaults", RunConfig{}, 70, 30, 10},
		{"pro only", RunConfig{ProAllocation: 40}, 60, 40, 10},
		{"flash only", RunConfig{FlashAllocation: 90}, 90, 10, 10},
		{"pro wins on disagreement", RunConfig{FlashAllocation: 80, ProAllocation: 50}, 50, 50, 10},
		{"all fast", RunConfig{FlashAllocation: 100, BatchSize: 3}, 100, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.flash, got.FlashAllocation)
			assert.Equal(t, tt.pro, got.ProAllocation)
			assert.Equal(t, tt.batchSize, got.BatchSize)
			assert.Equal(t, AutoDetect, got.SourceLang)
			assert.Equal(t, "Vietnamese", got.TargetLang)
		})
	}
}

func TestRunConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultRunConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"pro above 100", func(c *RunConfig) { c.ProAllocation = 120; c.FlashAllocation = -20 }},
		{"sum not 100", func(c *RunConfig) { c.ProAllocation = 10 }},
		{"batch zero", func(c *RunConfig) { c.BatchSize = 0 }},
		{"batch too large", func(c *RunConfig) { c.BatchSize = 51 }},
		{"auto target", func(c *RunConfig) { c.TargetLang = AutoDetect }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestRunConfig_AutoSource(t *testing.T) {
	t.Parallel()

	assert.True(t, RunConfig{}.AutoSource())
	assert.True(t, RunConfig{SourceLang: "auto detect"}.AutoSource())
	assert.False(t, RunConfig{SourceLang: "English"}.AutoSource())
}
