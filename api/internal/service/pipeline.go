// Package service chains the scan stages and the save path.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gradescan/api/internal/cache"
	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/similarity"
	"gradescan/api/internal/store"
	"gradescan/api/internal/suggest"
	"gradescan/api/internal/util"
	"gradescan/api/internal/validate"
)

type Extractor interface {
	Extract(ctx context.Context, img scan.Image, mode types.Mode) (types.ScanResult, error)
}

type Suggester interface {
	Generate(ctx context.Context, ext types.Extraction) (suggest.Bundle, error)
}

type PipelineOptions struct {
	// AutoApplyThreshold <= 0 means suggest.DefaultThreshold.
	AutoApplyThreshold float64
	DisableAutoApply   bool
	// CacheTTL <= 0 keeps entries until evicted.
	CacheTTL time.Duration
}

type ScanRequest struct {
	Image scan.Image
	Mode  types.Mode
	// ClassName fills the record's class when the scan found none.
	ClassName string
}

type ScanOutcome struct {
	Result      types.ScanResult `json:"result"`
	Record      types.Extraction `json:"record"`
	Suggestions suggest.Bundle   `json:"suggestions"`
	Validation  validate.Result  `json:"validation"`
	Report      string           `json:"report"`
	ImageHash   string           `json:"imageHash"`
	Cached      bool             `json:"cached"`
}

type Pipeline struct {
	scanner Extractor
	suggest Suggester
	history store.HistoryStore
	cache   cache.Client
	opts    PipelineOptions
	log     zerolog.Logger
}

// NewPipeline wires the scan stages. history and c may be nil.
func NewPipeline(sc Extractor, sg Suggester, history store.HistoryStore, c cache.Client, opts PipelineOptions, log zerolog.Logger) *Pipeline {
	return &Pipeline{scanner: sc, suggest: sg, history: history, cache: c, opts: opts, log: log}
}

// Scan runs one image through extraction, suggestions, auto-apply,
// validation and history, in that order.
func (p *Pipeline) Scan(ctx context.Context, req ScanRequest) (ScanOutcome, error) {
	if len(req.Image.Data) == 0 {
		return ScanOutcome{}, scan.ErrEmptyImage
	}
	if req.Mode == "" {
		req.Mode = types.ModeSingle
	}
	hash := cache.ImageHash(req.Image.Data)
	key := cache.ScanKey(hash, string(req.Mode))

	start := time.Now()
	res, cached := p.cached(ctx, key)
	if !cached {
		var err error
		res, err = p.scanner.Extract(ctx, req.Image, req.Mode)
		if err != nil {
			p.record(ctx, store.ScanEntry{Mode: string(req.Mode), ErrorMessage: err.Error(), ImageHash: hash})
			return ScanOutcome{}, fmt.Errorf("extract: %w", err)
		}
	}

	out := p.review(ctx, req, res)
	out.ImageHash = hash
	out.Cached = cached

	p.log.Info().
		Str("mode", string(req.Mode)).
		Str("source", res.Source).
		Bool("cached", cached).
		Int("students", out.Record.StudentsFound()).
		Bool("valid", out.Validation.IsValid).
		Dur("took", time.Since(start)).
		Msg("scan done")

	if cached {
		return out, nil
	}
	p.record(ctx, store.ScanEntry{
		Mode:          string(req.Mode),
		Source:        res.Source,
		Success:       !res.IsFallback(),
		Confidence:    res.Confidence,
		StudentsFound: out.Record.StudentsFound(),
		ErrorMessage:  res.Error,
		ImageHash:     hash,
	})
	if !res.IsFallback() {
		p.remember(ctx, key, res)
	}
	return out, nil
}

// review runs the post-extraction stages against the current store and the
// request's class. Cached model output goes through it as well.
func (p *Pipeline) review(ctx context.Context, req ScanRequest, res types.ScanResult) ScanOutcome {
	rec := fillClass(res.Parsed, req.ClassName, res.Text)

	bundle, err := p.suggest.Generate(ctx, rec)
	if err != nil {
		p.log.Warn().Err(err).Msg("suggestions unavailable")
		bundle = suggest.Bundle{Students: []suggest.StudentGroup{}, Subjects: []suggest.ValueGroup{}, Classes: []suggest.ValueGroup{}}
	}
	if !p.opts.DisableAutoApply && !res.IsFallback() {
		rec = suggest.ApplyBest(rec, bundle, p.opts.AutoApplyThreshold)
	}
	rec = cleanSubjects(rec)

	v := validate.Extraction(rec)
	return ScanOutcome{
		Result:      res,
		Record:      rec,
		Suggestions: bundle,
		Validation:  v,
		Report:      validate.Report(v),
	}
}

// cached returns the model output stored for key, if any.
func (p *Pipeline) cached(ctx context.Context, key string) (types.ScanResult, bool) {
	if p.cache == nil {
		return types.ScanResult{}, false
	}
	b, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.log.Warn().Err(err).Msg("cache get")
		}
		return types.ScanResult{}, false
	}
	var res types.ScanResult
	if err := json.Unmarshal(b, &res); err != nil {
		p.log.Warn().Err(err).Msg("cache decode")
		return types.ScanResult{}, false
	}
	return res, true
}

func (p *Pipeline) remember(ctx context.Context, key string, res types.ScanResult) {
	if p.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		p.log.Warn().Err(err).Msg("cache encode")
		return
	}
	if err := p.cache.Set(ctx, key, b, p.opts.CacheTTL); err != nil {
		p.log.Warn().Err(err).Msg("cache set")
	}
}

func (p *Pipeline) record(ctx context.Context, e store.ScanEntry) {
	if p.history == nil {
		return
	}
	if _, err := p.history.AddScan(ctx, e); err != nil {
		p.log.Warn().Err(err).Msg("history")
	}
}

// fillClass sets the detected class from the request, else from the raw
// model text, when the record has none.
func fillClass(ext types.Extraction, requested, text string) types.Extraction {
	if ext.DetectedClass != "" {
		return ext
	}
	if requested != "" {
		ext.DetectedClass = requested
	} else {
		ext.DetectedClass = similarity.DetectClass(text)
	}
	return ext
}

// cleanSubjects collapses whitespace in every subject, on copies.
func cleanSubjects(ext types.Extraction) types.Extraction {
	students := make([]types.StudentEntry, len(ext.Students))
	for i, s := range ext.Students {
		grades := make([]types.ExtractedGrade, len(s.Grades))
		for j, g := range s.Grades {
			g.Subject = util.CollapseSpaces(g.Subject)
			grades[j] = g
		}
		s.Grades = grades
		students[i] = s
	}
	ext.Students = students
	return ext
}
