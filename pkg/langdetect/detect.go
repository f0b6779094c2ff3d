// Package langdetect identifies the language of a submitted script body so
// the runner can pick the right interpreter and sandbox image.
package langdetect

import (
	"regexp"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Detector handles programming language detection.
type Detector struct{}

// New creates a new language detector.
func New() *Detector {
	return &Detector{}
}

// DetectOptions configures detection behavior.
type DetectOptions struct {
	// Filename hint (e.g., "main.py"), usually absent for raw submissions.
	Filename string

	// UseContent enables content-based detection.
	UseContent bool

	// UseShebang enables shebang detection.
	UseShebang bool

	// UseHeuristics enables pattern-based heuristics.
	UseHeuristics bool
}

// DefaultDetectOptions returns sensible defaults.
func DefaultDetectOptions() *DetectOptions {
	return &DetectOptions{
		UseContent:    true,
		UseShebang:    true,
		UseHeuristics: true,
	}
}

// DetectResult contains detection results.
type DetectResult struct {
	// Language is the detected language name.
	Language string

	// Confidence is the detection confidence (0.0 to 1.0).
	Confidence float64

	// Method indicates how the language was detected.
	Method string
}

// Detect identifies the programming language of a script body. Only
// languages with a registered runtime are reported, since anything else
// cannot be executed anyway.
func (d *Detector) Detect(code string, opts *DetectOptions) *DetectResult {
	if opts == nil {
		opts = DefaultDetectOptions()
	}

	if opts.Filename != "" {
		if lang, safe := enry.GetLanguageByFilename(opts.Filename); safe && d.runnable(lang) {
			return &DetectResult{Language: lang, Confidence: 1.0, Method: "filename"}
		}
		if lang, safe := enry.GetLanguageByExtension(opts.Filename); safe && d.runnable(lang) {
			return &DetectResult{Language: lang, Confidence: 0.95, Method: "extension"}
		}
	}

	if opts.UseShebang && strings.HasPrefix(strings.TrimSpace(code), "#!") {
		if lang, safe := enry.GetLanguageByShebang([]byte(code)); safe && d.runnable(lang) {
			return &DetectResult{Language: lang, Confidence: 0.95, Method: "shebang"}
		}
	}

	if opts.UseContent {
		filename := opts.Filename
		if filename == "" {
			filename = "script"
		}

		languages := enry.GetLanguages(filename, []byte(code))
		if len(languages) == 1 && d.runnable(languages[0]) {
			return &DetectResult{Language: languages[0], Confidence: 0.9, Method: "content"}
		}
		if len(languages) > 1 {
			if lang := enry.GetLanguage(filename, []byte(code)); d.runnable(lang) {
				return &DetectResult{Language: lang, Confidence: 0.8, Method: "classifier"}
			}
		}
	}

	if opts.UseHeuristics {
		if result := d.detectByPatterns(code); result != nil {
			return result
		}
	}

	return &DetectResult{Language: "", Confidence: 0, Method: "unknown"}
}

func (d *Detector) runnable(lang string) bool {
	if lang == "" {
		return false
	}
	_, ok := GetRuntimeInfo(lang)
	return ok
}

// heuristicPatterns covers the constructs enry's classifier tends to miss on
// short snippets, limited to the runnable language set.
var heuristicPatterns = map[string][]string{
	"JavaScript": {
		`(?m)^(const|let|var)\s+\w+\s*=`,
		`(?m)^function\s+\w+\s*\(`,
		`=>\s*[{(]`,
		`console\.(log|error|warn)\s*\(`,
		`require\s*\(`,
		`module\.exports`,
		`async\s+function`,
		`JSON\.(parse|stringify)`,
		`new\s+Promise`,
		`set(Timeout|Interval)\s*\(`,
	},
	"Python": {
		`(?m)^import\s+\w+`,
		`(?m)^from\s+\w+\s+import`,
		`(?m)^def\s+\w+\s*\(`,
		`(?m)^class\s+\w+.*:`,
		`(?m)^\s*print\s*\(`,
		`for\s+\w+\s+in\s+range\s*\(`,
		`if\s+__name__\s*==`,
		`lambda\s+\w*:`,
		`time\.sleep`,
	},
	"Ruby": {
		`(?m)^require\s+['"]`,
		`(?m)^def\s+\w+`,
		`(?m)^class\s+\w+\s*$`,
		`\.each\s+do\s*\|`,
		`(?m)^\s*puts\s+`,
	},
	"Shell": {
		`(?m)^#!/bin/(ba)?sh`,
		`(?m)^\s*if\s+\[\s+`,
		`(?m)^\s*for\s+\w+\s+in\s+`,
		`(?m)^\s*echo\s+`,
		`\$\{\w+\}`,
	},
}

// detectByPatterns scores regex matches for common language constructs.
func (d *Detector) detectByPatterns(code string) *DetectResult {
	scores := make(map[string]int)

	for lang, regexes := range heuristicPatterns {
		for _, pattern := range regexes {
			if matched, _ := regexp.MatchString(pattern, code); matched {
				scores[lang]++
			}
		}
	}

	var bestLang string
	var bestScore int
	for lang, score := range scores {
		if score > bestScore {
			bestLang = lang
			bestScore = score
		}
	}

	if bestScore >= 1 {
		confidence := float64(bestScore) / 5.0
		if confidence > 0.8 {
			confidence = 0.8
		}
		if confidence < 0.2 {
			confidence = 0.2
		}
		return &DetectResult{Language: bestLang, Confidence: confidence, Method: "heuristic"}
	}

	return nil
}

// Quick performs fast detection without heuristics.
func Quick(code string) string {
	d := New()
	result := d.Detect(code, &DetectOptions{
		UseContent: true,
		UseShebang: true,
	})
	return result.Language
}
