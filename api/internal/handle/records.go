package handle

import (
	"errors"
	"net/http"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/parse"
	"gradescan/api/internal/service"
	"gradescan/api/internal/suggest"
	"gradescan/api/internal/validate"
)

type RecordRequest struct {
	Record *types.Extraction `json:"record" validate:"required"`
}

func (h *Handle) Suggestions(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.d.Suggester.Generate(r.Context(), *req.Record)
	if err != nil {
		h.d.Log.Error().Err(err).Msg("suggestions")
		writeError(w, http.StatusInternalServerError, "suggestions error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type ApplyRequest struct {
	Record    *types.Extraction  `json:"record" validate:"required"`
	Bundle    *suggest.Bundle    `json:"bundle,omitempty"`
	Threshold float64            `json:"threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	Selection *suggest.Selection `json:"selection,omitempty"`
}

// ApplySuggestions applies a manual selection when one is given; otherwise
// the best suggestions of the bundle (generated when absent) above the
// threshold.
func (h *Handle) ApplySuggestions(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Selection != nil {
		out, err := suggest.Apply(*req.Record, *req.Selection)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, suggest.ErrBadSelection) || errors.Is(err, suggest.ErrUnknownKind) {
				code = http.StatusBadRequest
			}
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"record": out})
		return
	}

	bundle := req.Bundle
	if bundle == nil {
		b, err := h.d.Suggester.Generate(r.Context(), *req.Record)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "suggestions error: "+err.Error())
			return
		}
		bundle = &b
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = h.d.AutoApplyThreshold
	}
	out := suggest.ApplyBest(*req.Record, *bundle, threshold)
	writeJSON(w, http.StatusOK, map[string]any{"record": out, "suggestions": bundle})
}

type ValidateResponse struct {
	Validation validate.Result `json:"validation"`
	Report     string          `json:"report"`
}

func (h *Handle) Validate(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	v := validate.Extraction(*req.Record)
	writeJSON(w, http.StatusOK, ValidateResponse{Validation: v, Report: validate.Report(v)})
}

type InspectRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handle) Inspect(w http.ResponseWriter, r *http.Request) {
	var req InspectRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, parse.Inspect(req.Text))
}

type SaveRequest struct {
	Record       *types.Extraction `json:"record" validate:"required"`
	DefaultClass string            `json:"default_class,omitempty"`
	LinkExisting bool              `json:"link_existing,omitempty"`
}

func (h *Handle) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	sum, err := h.d.Saver.Save(r.Context(), *req.Record, service.SaveOptions{
		DefaultClass: req.DefaultClass,
		LinkExisting: req.LinkExisting,
	})
	if err != nil {
		h.d.Log.Error().Err(err).Msg("save")
		writeError(w, http.StatusInternalServerError, "save error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
