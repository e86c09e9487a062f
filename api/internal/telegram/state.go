package telegram

import (
	"sync"
	"time"

	"gradescan/api/internal/ocr/types"
)

const (
	defaultDebounce    = 1200 * time.Millisecond
	defaultScanTimeout = 3 * time.Minute
	maxPixels          = 18_000_000
	stackQuality       = 90
)

type chatSettings struct {
	mu        sync.Mutex
	scanMode  types.Mode
	className string
}

func (s *chatSettings) mode() types.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanMode == "" {
		return types.ModeSingle
	}
	return s.scanMode
}

func (s *chatSettings) setMode(m types.Mode) {
	s.mu.Lock()
	s.scanMode = m
	s.mu.Unlock()
}

func (s *chatSettings) class() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.className
}

func (s *chatSettings) setClass(c string) {
	s.mu.Lock()
	s.className = c
	s.mu.Unlock()
}

func (r *Router) settings(chatID int64) *chatSettings {
	v, _ := r.chats.LoadOrStore(chatID, &chatSettings{})
	return v.(*chatSettings)
}

type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"

	mu     sync.Mutex
	files  []batchFile
	timer  *time.Timer
	frozen bool
}

type batchFile struct {
	Data []byte
	Name string
	MIME string
}

// pendingSave is a scanned record awaiting the save / discard answer.
type pendingSave struct {
	Record    types.Extraction
	ClassName string
	MessageID int
}
