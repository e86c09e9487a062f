package scan

import (
	"time"

	"gradescan/api/internal/ocr/prompt"
	"gradescan/api/internal/ocr/types"
)

const (
	confidenceNormal  = 0.95
	confidenceRetry   = 0.9
	confidenceBlocked = 0.5
	confidenceManual  = 0.1
)

type Options struct {
	Prompts prompt.Set

	Temperature   float32
	SingleTokens  int32
	MultiTokens   int32
	CapableTokens int32
	LightTokens   int32

	SingleTimeout time.Duration
	MultiTimeout  time.Duration

	SingleWidth int
	MultiWidth  int
	JPEGQuality int

	// EscalateSingle retries empty single-student scans on the capable tier
	// too. Multi-student scans always escalate.
	EscalateSingle bool
}

func DefaultOptions() Options {
	return Options{
		Prompts:       prompt.Default(),
		Temperature:   0.1,
		SingleTokens:  2000,
		MultiTokens:   3000,
		CapableTokens: 3500,
		LightTokens:   2500,
		SingleTimeout: 30 * time.Second,
		MultiTimeout:  45 * time.Second,
		SingleWidth:   1200,
		MultiWidth:    1400,
		JPEGQuality:   90,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Prompts.Single == "" {
		o.Prompts.Single = d.Prompts.Single
	}
	if o.Prompts.Multi == "" {
		o.Prompts.Multi = d.Prompts.Multi
	}
	if o.Temperature == 0 {
		o.Temperature = d.Temperature
	}
	if o.SingleTokens == 0 {
		o.SingleTokens = d.SingleTokens
	}
	if o.MultiTokens == 0 {
		o.MultiTokens = d.MultiTokens
	}
	if o.CapableTokens == 0 {
		o.CapableTokens = d.CapableTokens
	}
	if o.LightTokens == 0 {
		o.LightTokens = d.LightTokens
	}
	if o.SingleTimeout == 0 {
		o.SingleTimeout = d.SingleTimeout
	}
	if o.MultiTimeout == 0 {
		o.MultiTimeout = d.MultiTimeout
	}
	if o.SingleWidth == 0 {
		o.SingleWidth = d.SingleWidth
	}
	if o.MultiWidth == 0 {
		o.MultiWidth = d.MultiWidth
	}
	if o.JPEGQuality == 0 {
		o.JPEGQuality = d.JPEGQuality
	}
	return o
}

func (o Options) timeout(mode types.Mode) time.Duration {
	if mode.IsMulti() {
		return o.MultiTimeout
	}
	return o.SingleTimeout
}

func (o Options) tokens(mode types.Mode) int32 {
	if mode.IsMulti() {
		return o.MultiTokens
	}
	return o.SingleTokens
}

func (o Options) width(mode types.Mode) int {
	if mode.IsMulti() {
		return o.MultiWidth
	}
	return o.SingleWidth
}
