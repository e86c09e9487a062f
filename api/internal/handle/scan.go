package handle

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/util"
)

const defaultScanDeadline = 180 * time.Second

type ScanRequest struct {
	// ImageB64 is plain base64 or a data: URL.
	ImageB64  string `json:"image_b64" validate:"required"`
	FileName  string `json:"file_name,omitempty"`
	MIME      string `json:"mime,omitempty"`
	Mode      string `json:"mode,omitempty" validate:"omitempty,oneof=single multi"`
	ClassName string `json:"class,omitempty"`
}

func (h *Handle) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !h.decode(w, r, &req) {
		return
	}

	img, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(img) == 0 {
		writeError(w, http.StatusBadRequest, "bad image_b64")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r))
	defer cancel()

	out, err := h.d.Pipeline.Scan(ctx, service.ScanRequest{
		Image:     scan.Image{Data: img, Name: req.FileName, MIME: util.PickMIME(req.MIME, req.FileName, hint, img)},
		Mode:      types.ParseMode(req.Mode),
		ClassName: req.ClassName,
	})
	if err != nil {
		if errors.Is(err, scan.ErrEmptyImage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.d.Log.Error().Err(err).Msg("scan")
		writeError(w, http.StatusBadGateway, "scan error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// requestDeadline reads X-Request-Timeout or ?timeoutSec, in seconds.
func requestDeadline(r *http.Request) time.Duration {
	for _, v := range []string{r.Header.Get("X-Request-Timeout"), r.URL.Query().Get("timeoutSec")} {
		if v == "" {
			continue
		}
		if n, _ := strconv.Atoi(v); n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultScanDeadline
}
