package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gradescan/api/internal/ocr/types"
)

//go:embed single.txt
var singlePrompt string

//go:embed multi.txt
var multiPrompt string

// Set holds the extraction prompt for each mode.
type Set struct {
	Single string
	Multi  string
}

// Default returns the built-in prompts.
func Default() Set {
	return Set{
		Single: strings.TrimSpace(singlePrompt),
		Multi:  strings.TrimSpace(multiPrompt),
	}
}

// Load starts from the built-in prompts and replaces each one found as
// <dir>/<mode>.txt. An empty dir falls back to PROMPT_DIR.
func Load(dir string) (Set, error) {
	set := Default()
	if dir == "" {
		dir = os.Getenv("PROMPT_DIR")
	}
	if dir == "" {
		return set, nil
	}
	for _, mode := range []types.Mode{types.ModeSingle, types.ModeMulti} {
		p := filepath.Join(dir, string(mode)+".txt")
		b, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Set{}, fmt.Errorf("prompt %s: %w", p, err)
		}
		txt := strings.TrimSpace(string(b))
		if txt == "" {
			continue
		}
		if mode == types.ModeMulti {
			set.Multi = txt
		} else {
			set.Single = txt
		}
	}
	return set, nil
}

func (s Set) For(mode types.Mode) string {
	if mode == types.ModeMulti {
		return s.Multi
	}
	return s.Single
}
