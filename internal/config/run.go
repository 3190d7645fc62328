package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	AutoDetect   = "Auto Detect"
	MinBatchSize = 1
	MaxBatchSize = 50
)

// RunConfig is the per-run settings snapshot. It is passed by value so a
// running pipeline never sees later edits.
type RunConfig struct {
	FlashAllocation int    `json:"flash_allocation" toml:"flash_allocation"`
	ProAllocation   int    `json:"pro_allocation" toml:"pro_allocation"`
	SourceLang      string `json:"source_lang" toml:"source_lang"`
	TargetLang      string `json:"target_lang" toml:"target_lang"`
	Genre           string `json:"genre" toml:"genre"`
	CustomPrompt    string `json:"custom_prompt" toml:"custom_prompt"`
	BatchSize       int    `json:"batch_size" toml:"batch_size"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		FlashAllocation: 70,
		ProAllocation:   30,
		SourceLang:      AutoDetect,
		TargetLang:      "Vietnamese",
		Genre:           "Modern/Life",
		BatchSize:       10,
	}
}

// Normalize fills empty fields from DefaultRunConfig and makes the two
// allocations complementary. When both are set and disagree ProAllocation wins.
func (c RunConfig) Normalize() RunConfig {
	def := DefaultRunConfig()
	if strings.TrimSpace(c.SourceLang) == "" {
		c.SourceLang = def.SourceLang
	}
	if strings.TrimSpace(c.TargetLang) == "" {
		c.TargetLang = def.TargetLang
	}
	if strings.TrimSpace(c.Genre) == "" {
		c.Genre = def.Genre
	}
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}

	switch {
	case c.FlashAllocation == 0 && c.ProAllocation == 0:
		c.FlashAllocation, c.ProAllocation = def.FlashAllocation, def.ProAllocation
	case c.FlashAllocation+c.ProAllocation != 100:
		if c.ProAllocation == 0 {
			c.ProAllocation = 100 - c.FlashAllocation
		} else {
			c.FlashAllocation = 100 - c.ProAllocation
		}
	}
	return c
}

// Validate rejects values a run cannot use. Call it after Normalize.
func (c RunConfig) Validate() error {
	if c.ProAllocation < 0 || c.ProAllocation > 100 {
		return fmt.Errorf("%w: pro_allocation must be within 0-100, got %d", ErrInvalid, c.ProAllocation)
	}
	if c.FlashAllocation < 0 || c.FlashAllocation > 100 {
		return fmt.Errorf("%w: flash_allocation must be within 0-100, got %d", ErrInvalid, c.FlashAllocation)
	}
	if c.FlashAllocation+c.ProAllocation != 100 {
		return fmt.Errorf("%w: allocations must add up to 100", ErrInvalid)
	}
	if c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch_size must be within %d-%d, got %d", ErrInvalid, MinBatchSize, MaxBatchSize, c.BatchSize)
	}
	if strings.TrimSpace(c.TargetLang) == "" || c.TargetLang == AutoDetect {
		return fmt.Errorf("%w: target_lang is required", ErrInvalid)
	}
	return nil
}

// AutoSource reports whether the source language should be detected from
// the file content.
func (c RunConfig) AutoSource() bool {
	return c.SourceLang == "" || strings.EqualFold(c.SourceLang, AutoDetect)
}

// Genres are the genre presets offered to users. Any other value is accepted
// and passed to the model as is.
var Genres = []string{
	"Xianxia",
	"Wuxia/Historical",
	"Modern/Life",
	"Sci-Fi/Tech",
	"Comedy/Teen",
	"Horror",
	"Documentary",
}

// Languages are the language presets; AutoDetect is valid only as a source.
var Languages = []string{
	AutoDetect,
	"English",
	"Chinese",
	"Japanese",
	"Korean",
	"Vietnamese",
	"Spanish",
	"French",
	"German",
}
