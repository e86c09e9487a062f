// Package handle holds the JSON HTTP handlers of the scan API.
package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
)

type Scanner interface {
	Scan(ctx context.Context, req service.ScanRequest) (service.ScanOutcome, error)
}

type Saver interface {
	Save(ctx context.Context, ext types.Extraction, opts service.SaveOptions) (service.SaveSummary, error)
}

type StatusReporter interface {
	Status() scan.Status
}

type Records interface {
	service.RankingStore
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the handlers. Status may be nil.
type Deps struct {
	Pipeline  Scanner
	Suggester service.Suggester
	Saver     Saver
	History   store.HistoryStore
	Records   Records
	Status    StatusReporter
	// AutoApplyThreshold is used when a request gives none.
	AutoApplyThreshold float64
	Log                zerolog.Logger
}

type Handle struct {
	d        Deps
	validate *validator.Validate
}

func New(d Deps) *Handle {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handle{d: d, validate: v}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decode reads the JSON body into dst and validates it. On failure the
// response is written and false returned.
func (h *Handle) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fieldMessage(fe)
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}
