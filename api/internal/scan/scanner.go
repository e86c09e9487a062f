// Package scan runs one image through the model tiers and returns a parsed
// extraction, falling back to a manual-entry stub when every tier fails.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"gradescan/api/internal/ocr"
	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/parse"
	"gradescan/api/internal/util"
)

const (
	MethodNone     = "none"
	MethodGemini   = "gemini"
	MethodFallback = "fallback"
)

var (
	ErrEmptyImage  = errors.New("empty image")
	ErrUnavailable = errors.New("no model engine available")
	// ErrExhausted means no model path worked and no stub could be built.
	ErrExhausted = errors.New("all extraction methods failed")
)

// Image is the scan input. Name and MIME are optional; the type is sniffed
// from the bytes when both are empty.
type Image struct {
	Data []byte
	Name string
	MIME string
}

type Status struct {
	Initialized    bool          `json:"initialized"`
	ModelAvailable bool          `json:"modelAvailable"`
	Model          string        `json:"model,omitempty"`
	LastMethod     string        `json:"lastMethod"`
	LastSource     string        `json:"lastSource,omitempty"`
	LastErrorKind  ocr.ErrorKind `json:"lastErrorKind,omitempty"`
}

// readier is implemented by engines that can check their configuration
// without a network call.
type readier interface {
	Ready() error
}

// Scanner owns the engines and the status of its last extraction. It is safe
// for concurrent use; concurrent scans only race on the reported status.
type Scanner struct {
	engs *ocr.Engines
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	status Status
}

func New(engs *ocr.Engines, opts Options, log zerolog.Logger) *Scanner {
	if engs == nil {
		engs = &ocr.Engines{}
	}
	return &Scanner{
		engs:   engs,
		opts:   opts.withDefaults(),
		log:    log.With().Str("component", "scanner").Logger(),
		status: Status{LastMethod: MethodNone},
	}
}

// Initialize checks that the default engine is configured. An unusable
// engine only marks the scanner degraded: Extract then goes straight to the
// manual stub.
func (s *Scanner) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	available := s.engs.Available()
	var model string
	if available {
		model = s.engs.Default.GetModel()
		if r, ok := s.engs.Default.(readier); ok {
			if err := r.Ready(); err != nil {
				s.log.Warn().Err(err).Msg("model engine not ready, manual mode only")
				available = false
			}
		}
	} else {
		s.log.Warn().Msg("no model engine configured, manual mode only")
	}

	s.mu.Lock()
	s.status.Initialized = true
	s.status.ModelAvailable = available
	s.status.Model = model
	s.mu.Unlock()

	s.log.Info().Bool("available", available).Str("model", model).Msg("scanner initialized")
	return nil
}

func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Extract preprocesses the image and runs the model tiers. When they all
// fail the manual-entry stub is returned with the failure in its Error
// field; an error comes back only for empty input or an exhausted pipeline.
func (s *Scanner) Extract(ctx context.Context, img Image, mode types.Mode) (types.ScanResult, error) {
	if len(img.Data) == 0 {
		return types.ScanResult{}, ErrEmptyImage
	}
	if !s.Status().Initialized {
		if err := s.Initialize(ctx); err != nil {
			return types.ScanResult{}, err
		}
	}

	data, mime := s.prepare(img, mode)

	var err error
	if s.Status().ModelAvailable {
		var res types.ScanResult
		res, err = s.invoke(ctx, data, mime, mode)
		if err == nil {
			s.record(MethodGemini, res.Source, "")
			return res, nil
		}
	} else {
		err = ocr.NewError(ocr.KindUnknown, "", ErrUnavailable)
	}

	kind := ocr.KindOf(err)
	s.log.Warn().Err(err).Str("kind", string(kind)).Str("mode", string(mode)).Msg("model extraction failed, manual entry required")

	stub, serr := ManualStub(mode, err)
	if serr != nil {
		s.record(MethodNone, "", kind)
		return types.ScanResult{}, fmt.Errorf("%w: %v", ErrExhausted, errors.Join(err, serr))
	}
	s.record(MethodFallback, stub.Source, kind)
	return stub, nil
}

func (s *Scanner) record(method, source string, kind ocr.ErrorKind) {
	s.mu.Lock()
	s.status.LastMethod = method
	s.status.LastSource = source
	s.status.LastErrorKind = kind
	s.mu.Unlock()
}

// prepare resizes raster images to the mode's width and re-encodes them as
// JPEG. PDFs and undecodable input are sent unchanged.
func (s *Scanner) prepare(img Image, mode types.Mode) ([]byte, string) {
	mime := util.PickMIME(img.MIME, img.Name, "", img.Data)
	if mime == util.MIMEPDF {
		return img.Data, mime
	}
	out, err := util.ResizeJPEG(img.Data, s.opts.width(mode), s.opts.JPEGQuality)
	if err != nil {
		s.log.Warn().Err(err).Str("mime", mime).Msg("preprocessing failed, sending original image")
		return img.Data, mime
	}
	s.log.Debug().Int("in", len(img.Data)).Int("out", len(out)).Msg("image preprocessed")
	return out, util.MIMEJPEG
}

// invoke runs the default tier, then escalation on an empty result or the
// light tier on a rate limit.
func (s *Scanner) invoke(ctx context.Context, data []byte, mime string, mode types.Mode) (types.ScanResult, error) {
	eng, err := s.engs.GetEngine(ocr.TierDefault)
	if err != nil {
		return types.ScanResult{}, ocr.NewError(ocr.KindUnknown, "", err)
	}

	first, err := s.attempt(ctx, eng, data, mime, mode, s.opts.tokens(mode))
	if err != nil {
		if ocr.KindOf(err) != ocr.KindRateLimited {
			return types.ScanResult{}, err
		}
		res, rerr := s.retryLight(ctx, data, mime, mode)
		if rerr != nil {
			s.log.Error().Err(rerr).Msg("light tier retry failed")
			return types.ScanResult{}, err
		}
		return res, nil
	}

	res := first.result(mode, sourceFor(mode, false), confidenceNormal)
	if s.shouldEscalate(mode, first.ext) {
		if esc, ok := s.escalate(ctx, data, mime, mode); ok {
			res = esc.result(mode, sourceFor(mode, false), confidenceNormal)
			res.Escalated = true
		}
	}
	return res, nil
}

func (s *Scanner) shouldEscalate(mode types.Mode, ext types.Extraction) bool {
	if mode.IsMulti() {
		return len(ext.Students) == 0
	}
	return s.opts.EscalateSingle && ext.StudentsFound() == 0
}

// escalate retries on the capable tier. ok is false when the tier is
// missing, fails, or also comes back empty.
func (s *Scanner) escalate(ctx context.Context, data []byte, mime string, mode types.Mode) (attemptResult, bool) {
	eng, err := s.engs.GetEngine(ocr.TierCapable)
	if err != nil {
		s.log.Debug().Err(err).Msg("no capable tier, keeping empty result")
		return attemptResult{}, false
	}
	s.log.Warn().Str("model", eng.GetModel()).Msg("no students found, escalating")
	got, err := s.attempt(ctx, eng, data, mime, mode, s.opts.CapableTokens)
	if err != nil {
		s.log.Warn().Err(err).Msg("escalation failed, keeping original result")
		return attemptResult{}, false
	}
	if s.shouldEscalate(mode, got.ext) {
		s.log.Info().Msg("escalation found no students either")
		return attemptResult{}, false
	}
	return got, true
}

func (s *Scanner) retryLight(ctx context.Context, data []byte, mime string, mode types.Mode) (types.ScanResult, error) {
	eng, err := s.engs.GetEngine(ocr.TierLight)
	if err != nil {
		return types.ScanResult{}, err
	}
	s.log.Warn().Str("model", eng.GetModel()).Msg("rate limited, retrying on light tier")
	got, err := s.attempt(ctx, eng, data, mime, mode, s.opts.LightTokens)
	if err != nil {
		return types.ScanResult{}, err
	}
	return got.result(mode, sourceFor(mode, true), confidenceRetry), nil
}

type attemptResult struct {
	resp   ocr.Response
	ext    types.Extraction
	method parse.Method
}

func (a attemptResult) result(mode types.Mode, source string, confidence float64) types.ScanResult {
	if a.resp.Blocked {
		confidence = confidenceBlocked
	}
	return types.ScanResult{
		Success:     true,
		Text:        a.resp.Text,
		Parsed:      a.ext,
		Source:      source,
		Model:       a.resp.Model,
		Confidence:  confidence,
		ParseMethod: string(a.method),
		Blocked:     a.resp.Blocked,
	}
}

// attempt is one model call plus parsing. A heuristic parse failure counts
// as a failed call.
func (s *Scanner) attempt(ctx context.Context, eng ocr.Engine, data []byte, mime string, mode types.Mode, tokens int32) (attemptResult, error) {
	req := ocr.Request{
		Prompt:      s.opts.Prompts.For(mode),
		Image:       data,
		MIME:        mime,
		MaxTokens:   tokens,
		Temperature: s.opts.Temperature,
	}
	resp, err := race(ctx, eng, req, s.opts.timeout(mode))
	if err != nil {
		return attemptResult{}, ocr.Classify(err, eng.GetModel())
	}
	if resp.Model == "" {
		resp.Model = eng.GetModel()
	}
	s.log.Debug().Str("model", resp.Model).Int("chars", len(resp.Text)).Bool("blocked", resp.Blocked).Msg("model responded")

	ext, method, err := parse.Parse(resp.Text, mode)
	if err != nil {
		return attemptResult{}, ocr.NewError(ocr.KindUnknown, resp.Model, err)
	}
	if method == parse.MethodHeuristic {
		s.log.Warn().Str("model", resp.Model).Msg("no usable JSON, used heuristic parser")
	}
	return attemptResult{resp: resp, ext: ext, method: method}, nil
}

func sourceFor(mode types.Mode, retry bool) string {
	switch {
	case mode.IsMulti() && retry:
		return types.SourceGeminiMultiRetry
	case mode.IsMulti():
		return types.SourceGeminiMulti
	case retry:
		return types.SourceGeminiRetry
	}
	return types.SourceGemini
}
