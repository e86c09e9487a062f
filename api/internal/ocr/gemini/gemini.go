package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gradescan/api/internal/ocr"
)

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Ready reports a configuration problem without calling the API.
func (e *Engine) Ready() error {
	if e.APIKey == "" {
		return errors.New("GEMINI_API_KEY is empty")
	}
	if e.Model == "" {
		return errors.New("gemini model is empty")
	}
	return nil
}

// Generate sends the prompt and image in one request. Errors come back
// classified as *ocr.Error. A safety block is not an error: the response is
// returned with Blocked set so the caller can lower its confidence.
func (e *Engine) Generate(ctx context.Context, req ocr.Request) (ocr.Response, error) {
	if e.APIKey == "" {
		return ocr.Response{}, ocr.NewError(ocr.KindUnknown, e.Model, errors.New("GEMINI_API_KEY is empty"))
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return ocr.Response{}, ocr.NewError(ocr.KindTransport, e.Model, fmt.Errorf("gemini client: %w", err))
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return ocr.Response{}, ocr.NewError(ocr.KindUnknown, e.Model, errors.New("gemini: model is nil"))
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = ptrInt32(req.MaxTokens)
	}
	// no safety filters: report cards must never be refused
	m.SafetySettings = []*genai.SafetySetting{}

	mime := req.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	parts := []genai.Part{
		genai.Text(req.Prompt),
		&genai.Blob{MIMEType: mime, Data: req.Image},
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return blockedResponse(e.Model, blocked), nil
		}
		return ocr.Response{}, ocr.Classify(err, e.Model)
	}

	out := ocr.Response{Text: firstText(resp), Model: e.Model}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		out.Blocked = true
		out.BlockReason = resp.PromptFeedback.BlockReason.String()
	}
	return out, nil
}

func blockedResponse(model string, be *genai.BlockedError) ocr.Response {
	out := ocr.Response{Model: model, Blocked: true, BlockReason: "safety"}
	if be.PromptFeedback != nil {
		out.BlockReason = be.PromptFeedback.BlockReason.String()
	}
	if be.Candidate != nil && be.Candidate.Content != nil {
		out.Text = partsText(be.Candidate.Content.Parts)
	}
	return out
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		if txt := partsText(c.Content.Parts); txt != "" {
			return txt
		}
	}
	return ""
}

func partsText(parts []genai.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
