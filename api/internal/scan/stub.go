package scan

import (
	"fmt"

	"gradescan/api/internal/ocr/types"
)

const (
	manualText      = "Mode manuel activé. Veuillez saisir les données manuellement."
	manualTextMulti = "Mode manuel multi-élèves activé. Veuillez saisir les données manuellement."
)

// ManualStub builds the manual-entry template: one empty student with one
// empty grade out of 20. cause, when set, is recorded in the result.
func ManualStub(mode types.Mode, cause error) (types.ScanResult, error) {
	entry := types.StudentEntry{
		Grades: []types.ExtractedGrade{{Scale: 20, ScoreDefaulted: true}},
	}
	res := types.ScanResult{
		Success:                  true,
		Confidence:               confidenceManual,
		RequiresManualCorrection: true,
	}
	if cause != nil {
		res.Error = cause.Error()
	}

	switch mode {
	case types.ModeSingle:
		res.Text = manualText
		res.Source = types.SourceFallback
		res.Parsed = types.NewSingle(types.ExtractionResult{Student: entry.Student, Grades: entry.Grades})
	case types.ModeMulti:
		res.Text = manualTextMulti
		res.Source = types.SourceFallbackMulti
		res.Parsed = types.NewMulti(types.MultiExtractionResult{
			Students:           []types.StudentEntry{entry},
			TotalStudentsFound: 1,
		})
	default:
		return types.ScanResult{}, fmt.Errorf("manual stub: unknown mode %q", mode)
	}
	return res, nil
}
