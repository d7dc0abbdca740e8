package core

import (
	"path/filepath"
	"strings"
)

var extLanguages = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".java":  "java",
	".rb":    "ruby",
	".php":   "php",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rs":    "rust",
	".kt":    "kotlin",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".pl":    "perl",
	".lua":   "lua",
	".sql":   "sql",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".tf":    "terraform",
	".html":  "html",
	".vue":   "javascript",
}

// DetectLanguage maps a file path's extension onto a language label. Pure
// function, no I/O; the path does not have to exist. Unknown extensions
// yield "unknown".
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return "unknown"
}

// ScannableLanguage reports whether a detected language is worth sending
// to the analyzers at all.
func ScannableLanguage(lang string) bool {
	return lang != "unknown"
}
