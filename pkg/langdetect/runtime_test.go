package langdetect

import (
	"testing"
)

func TestGetRuntimeInfo(t *testing.T) {
	tests := []struct {
		language string
		wantCmd  string
		wantOK   bool
	}{
		{"JavaScript", "node", true},
		{"Python", "python3", true},
		{"Ruby", "ruby", true},
		{"Shell", "sh", true},
		{"Unknown", "", false},
		{"Fortran", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			info, ok := GetRuntimeInfo(tt.language)
			if ok != tt.wantOK {
				t.Fatalf("GetRuntimeInfo(%q) ok = %v, want %v", tt.language, ok, tt.wantOK)
			}
			if ok && info.RunCommand[0] != tt.wantCmd {
				t.Errorf("GetRuntimeInfo(%q).RunCommand[0] = %q, want %q", tt.language, info.RunCommand[0], tt.wantCmd)
			}
		})
	}
}

func TestGetRuntimeInfo_Aliases(t *testing.T) {
	tests := []struct {
		alias    string
		wantLang string
	}{
		{"js", "JavaScript"},
		{"node", "JavaScript"},
		{"nodejs", "JavaScript"},
		{"JAVASCRIPT", "JavaScript"},
		{"python", "Python"},
		{"py", "Python"},
		{"rb", "Ruby"},
		{"bash", "Shell"},
		{"sh", "Shell"},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			info, ok := GetRuntimeInfo(tt.alias)
			if !ok {
				t.Fatalf("GetRuntimeInfo(%q) not found", tt.alias)
			}
			if info.Language != tt.wantLang {
				t.Errorf("GetRuntimeInfo(%q).Language = %q, want %q", tt.alias, info.Language, tt.wantLang)
			}
		})
	}
}

func TestGetDockerImage(t *testing.T) {
	tests := []struct {
		language  string
		wantImage string
	}{
		{"JavaScript", "node:22-slim"},
		{"Python", "python:3.12-slim"},
		{"nope", ""},
	}

	for _, tt := range tests {
		if got := GetDockerImage(tt.language); got != tt.wantImage {
			t.Errorf("GetDockerImage(%q) = %q, want %q", tt.language, got, tt.wantImage)
		}
	}
}

func TestSupportedLanguages(t *testing.T) {
	langs := SupportedLanguages()
	if len(langs) != len(DefaultRuntimes) {
		t.Fatalf("SupportedLanguages() returned %d entries, want %d", len(langs), len(DefaultRuntimes))
	}
	for i := 1; i < len(langs); i++ {
		if langs[i-1] >= langs[i] {
			t.Fatalf("SupportedLanguages() not sorted: %v", langs)
		}
	}
}
