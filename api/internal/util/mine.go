package util

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEPDF  = "application/pdf"
)

// MIMEFromName picks the MIME type from a file extension; "" when unknown.
func MIMEFromName(name string) string {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".jpg", ".jpeg":
		return MIMEJPEG
	case ".png":
		return MIMEPNG
	case ".webp":
		return MIMEWebP
	case ".pdf":
		return MIMEPDF
	}
	return ""
}

// SniffMIME detects jpeg/png/webp/pdf from magic bytes.
func SniffMIME(b []byte) string {
	switch {
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8:
		return MIMEJPEG
	case len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return MIMEPNG
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return MIMEWebP
	case len(b) >= 5 && string(b[:5]) == "%PDF-":
		return MIMEPDF
	}
	return ""
}

// DecodeBase64MaybeDataURL decodes base64. For a data: URI the MIME from the
// prefix is returned as well.
func DecodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hintMIME string
	if strings.HasPrefix(s, "data:") {
		// data:<mime>;base64,<payload>
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hintMIME = meta[:semi]
			} else {
				hintMIME = meta
			}
			s = s[idx+1:]
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, hintMIME, nil
	} else if b2, err2 := base64.URLEncoding.DecodeString(s); err2 == nil {
		return b2, hintMIME, nil
	} else {
		return nil, "", err
	}
}

// PickMIME: explicit value, then file extension, then data:URI hint, then
// magic bytes. Defaults to JPEG.
func PickMIME(explicit, name, hint string, data []byte) string {
	if exp := strings.TrimSpace(explicit); exp != "" {
		return exp
	}
	if m := MIMEFromName(name); m != "" {
		return m
	}
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	if m := SniffMIME(data); m != "" {
		return m
	}
	if len(data) > 0 {
		if m := http.DetectContentType(data); strings.HasPrefix(m, "image/") {
			return m
		}
	}
	return MIMEJPEG
}
