package domain

import (
	"path/filepath"
	"strings"
)

// Language is an explicit language tag used to select a symbol extractor.
type Language string

// Supported language tags.
const (
	LanguageUnknown    Language = ""
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
	LanguageJava       Language = "java"
	LanguageKotlin     Language = "kotlin"
	LanguageRust       Language = "rust"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageCSharp     Language = "csharp"
	LanguageRuby       Language = "ruby"
	LanguagePHP        Language = "php"
	LanguageSwift      Language = "swift"
	LanguageScala      Language = "scala"
)

var extensionLanguages = map[string]Language{
	".go":    LanguageGo,
	".py":    LanguagePython,
	".js":    LanguageJavaScript,
	".jsx":   LanguageJavaScript,
	".mjs":   LanguageJavaScript,
	".ts":    LanguageTypeScript,
	".tsx":   LanguageTSX,
	".java":  LanguageJava,
	".kt":    LanguageKotlin,
	".kts":   LanguageKotlin,
	".rs":    LanguageRust,
	".c":     LanguageC,
	".h":     LanguageC,
	".cpp":   LanguageCPP,
	".cc":    LanguageCPP,
	".cxx":   LanguageCPP,
	".hpp":   LanguageCPP,
	".cs":    LanguageCSharp,
	".rb":    LanguageRuby,
	".php":   LanguagePHP,
	".swift": LanguageSwift,
	".scala": LanguageScala,
}

// DetectLanguage returns the language tag for a file path based on its extension.
// Returns LanguageUnknown when the extension is not recognised.
func DetectLanguage(path string) Language {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// ParseLanguage normalises a user-supplied language hint.
// Common aliases ("py", "js", "ts", "golang") are accepted.
func ParseLanguage(hint string) Language {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch h {
	case "":
		return LanguageUnknown
	case "py":
		return LanguagePython
	case "js", "jsx":
		return LanguageJavaScript
	case "ts":
		return LanguageTypeScript
	case "golang":
		return LanguageGo
	case "c++":
		return LanguageCPP
	case "c#", "cs":
		return LanguageCSharp
	case "rb":
		return LanguageRuby
	case "rs":
		return LanguageRust
	case "kt":
		return LanguageKotlin
	}
	if lang, ok := extensionLanguages["."+h]; ok {
		return lang
	}
	return Language(h)
}

// IsSupported returns true if the file path has a recognised source extension.
func IsSupported(path string) bool {
	return DetectLanguage(path) != LanguageUnknown
}

// String returns the string representation.
func (l Language) String() string {
	if l == LanguageUnknown {
		return "unknown"
	}
	return string(l)
}
