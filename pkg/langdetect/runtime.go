package langdetect

import (
	"sort"
	"strings"
)

// RuntimeInfo maps a language to its interpreter details.
type RuntimeInfo struct {
	// Language is the canonical language name.
	Language string

	// Aliases are alternative names for the language.
	Aliases []string

	// FileExt is the script file extension (e.g., ".js", ".py").
	FileExt string

	// RunCommand is the interpreter invocation; the script path is appended.
	RunCommand []string

	// DockerImage is the default container image for this language.
	DockerImage string
}

// DefaultRuntimes lists the interpreters the runner knows how to drive.
// The set is limited to interpreted languages: a submission is one source
// text evaluated in place, there is no build step in the lifecycle.
var DefaultRuntimes = map[string]*RuntimeInfo{
	"JavaScript": {
		Language:    "JavaScript",
		Aliases:     []string{"javascript", "js", "node", "nodejs"},
		FileExt:     ".js",
		RunCommand:  []string{"node"},
		DockerImage: "node:22-slim",
	},
	"Python": {
		Language:    "Python",
		Aliases:     []string{"python", "python3", "py"},
		FileExt:     ".py",
		RunCommand:  []string{"python3"},
		DockerImage: "python:3.12-slim",
	},
	"Ruby": {
		Language:    "Ruby",
		Aliases:     []string{"ruby", "rb"},
		FileExt:     ".rb",
		RunCommand:  []string{"ruby"},
		DockerImage: "ruby:3.3-slim",
	},
	"Shell": {
		Language:    "Shell",
		Aliases:     []string{"shell", "sh", "bash"},
		FileExt:     ".sh",
		RunCommand:  []string{"sh"},
		DockerImage: "alpine:3.20",
	},
}

// aliasMap indexes runtimes by lowercase name and alias.
var aliasMap = map[string]*RuntimeInfo{}

func init() {
	for _, info := range DefaultRuntimes {
		aliasMap[strings.ToLower(info.Language)] = info
		for _, alias := range info.Aliases {
			aliasMap[strings.ToLower(alias)] = info
		}
	}
}

// GetRuntimeInfo resolves a language name or alias to its runtime.
func GetRuntimeInfo(language string) (*RuntimeInfo, bool) {
	if info, ok := DefaultRuntimes[language]; ok {
		return info, true
	}
	if info, ok := aliasMap[strings.ToLower(language)]; ok {
		return info, true
	}
	return nil, false
}

// GetDockerImage returns the default image for a language, or "" if the
// language is unknown.
func GetDockerImage(language string) string {
	if info, ok := GetRuntimeInfo(language); ok {
		return info.DockerImage
	}
	return ""
}

// SupportedLanguages returns the canonical names of all runnable languages,
// sorted for stable output.
func SupportedLanguages() []string {
	names := make([]string, 0, len(DefaultRuntimes))
	for name := range DefaultRuntimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
