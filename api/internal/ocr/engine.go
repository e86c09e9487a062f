package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Request is one vision call: a prompt plus a single image part.
type Request struct {
	Prompt      string
	Image       []byte
	MIME        string
	MaxTokens   int32
	Temperature float32
}

type Response struct {
	Text        string
	Model       string
	Blocked     bool
	BlockReason string
}

type Engine interface {
	Name() string
	GetModel() string
	Generate(ctx context.Context, req Request) (Response, error)
}

type Tier string

const (
	TierDefault Tier = "default"
	TierLight   Tier = "light"
	TierCapable Tier = "capable"
)

// Engines holds one engine per model tier. Light and Capable are optional.
type Engines struct {
	Default Engine
	Light   Engine
	Capable Engine
}

func (e *Engines) GetEngine(tier Tier) (Engine, error) {
	var eng Engine
	switch Tier(strings.ToLower(string(tier))) {
	case TierDefault, "":
		eng = e.Default
	case TierLight:
		eng = e.Light
	case TierCapable:
		eng = e.Capable
	default:
		return nil, fmt.Errorf("unknown tier %q; use default|light|capable", tier)
	}
	if eng == nil {
		return nil, fmt.Errorf("tier %q is not configured", tier)
	}
	return eng, nil
}

// Available reports whether at least the default tier is set.
func (e *Engines) Available() bool {
	return e != nil && e.Default != nil
}
