package generic

import (
	"regexp"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// blockStyle selects how a symbol's end line is found.
type blockStyle int

const (
	// blockBraces ends a symbol where its braces balance.
	blockBraces blockStyle = iota
	// blockIndent ends a symbol before the next line indented at or
	// above its header.
	blockIndent
)

// profile is the pattern set for one language family.
// Patterns use the named groups "name" and, optionally, "parent".
type profile struct {
	functions []*regexp.Regexp
	classes   []*regexp.Regexp
	imports   []*regexp.Regexp
	block     blockStyle
}

var reservedNames = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "foreach": {}, "while": {}, "switch": {},
	"catch": {}, "return": {}, "new": {}, "sizeof": {}, "typeof": {},
	"function": {}, "elif": {}, "except": {}, "with": {}, "match": {},
}

var (
	jsProfile = profile{
		functions: compile(
			`\bfunction\s*\*?\s*(?P<name>[\w$]+)\s*\(`,
			`\b(?:const|let|var)\s+(?P<name>[\w$]+)\s*=\s*(?:async\s+)?function\b`,
			`\b(?:const|let|var)\s+(?P<name>[\w$]+)\s*=\s*(?:async\s*)?(?:\([^)]*\)|[\w$]+)\s*(?::\s*[^=]+)?=>`,
			`^\s*(?:(?:public|private|protected|static|async|readonly|override|get|set)\s+)*(?P<name>[\w$]+)\s*(?:<[^>]*>)?\([^)]*\)\s*(?::\s*[^{]+)?\{\s*$`,
		),
		classes: compile(
			`\bclass\s+(?P<name>[\w$]+)`,
			`\binterface\s+(?P<name>[\w$]+)`,
			`\benum\s+(?P<name>[\w$]+)\s*\{`,
		),
		imports: compile(
			`^\s*import\s+.*?\bfrom\s+['"](?P<name>[^'"]+)['"]`,
			`^\s*import\s+['"](?P<name>[^'"]+)['"]`,
			`\brequire\(\s*['"](?P<name>[^'"]+)['"]\s*\)`,
		),
		block: blockBraces,
	}

	pythonProfile = profile{
		functions: compile(`^\s*(?:async\s+)?def\s+(?P<name>\w+)\s*\(`),
		classes:   compile(`^\s*class\s+(?P<name>\w+)`),
		imports: compile(
			`^\s*from\s+(?P<name>[\w.]+)\s+import\b`,
			`^\s*import\s+(?P<name>[\w.]+)`,
		),
		block: blockIndent,
	}

	jvmProfile = profile{
		functions: compile(
			`\b(?:fun|def|func)\s+(?:<[^>]+>\s*)?(?:[\w.]+\.)?(?P<name>\w+)\s*[(<\[]`,
			`^\s*(?:(?:public|private|protected|internal|static|final|abstract|synchronized|async|virtual|override|sealed|native)\s+)*[\w<>\[\],.?]+\s+(?P<name>\w+)\s*\([^)]*\)\s*(?:throws\s+[\w\s,.]+)?\s*\{?\s*$`,
		),
		classes: compile(
			`\b(?:class|interface|enum|struct|record|object|trait|protocol|extension)\s+(?P<name>\w+)`,
		),
		imports: compile(
			`^\s*import\s+(?:static\s+)?(?P<name>[\w.]+(?:\.\*)?)`,
			`^\s*using\s+(?:static\s+)?(?P<name>[\w.]+)\s*;`,
		),
		block: blockBraces,
	}

	goProfile = profile{
		functions: compile(
			`^func\s*\(\s*(?:\w+\s+)?\*?(?P<parent>\w+)(?:\[[^\]]*\])?\s*\)\s*(?P<name>\w+)\s*[(\[]`,
			`^func\s+(?P<name>\w+)\s*[(\[]`,
		),
		classes: compile(`^type\s+(?P<name>\w+)(?:\[[^\]]*\])?\s+(?:struct|interface)\b`),
		imports: compile(`^\s*(?:import\s+)?(?:[\w.]+\s+)?"(?P<name>[^"]+)"\s*$`),
		block:   blockBraces,
	}

	cProfile = profile{
		functions: compile(
			`^\s*(?:(?:static|inline|virtual|extern|const|unsigned|signed|constexpr)\s+)*[\w:<>]+[\s*&]+(?P<name>[\w:~]+)\s*\([^;]*\)\s*(?:const\s*)?(?:override\s*)?\{?\s*$`,
		),
		classes: compile(`^\s*(?:typedef\s+)?(?:class|struct|namespace|union)\s+(?P<name>\w+)`),
		imports: compile(`^\s*#\s*include\s*[<"](?P<name>[^>"]+)[>"]`),
		block:   blockBraces,
	}

	rubyProfile = profile{
		functions: compile(`^\s*def\s+(?:self\.)?(?P<name>[\w?!=]+)`),
		classes:   compile(`^\s*(?:class|module)\s+(?P<name>[\w:]+)`),
		imports:   compile(`^\s*require(?:_relative)?\s*\(?\s*['"](?P<name>[^'"]+)['"]`),
		block:     blockIndent,
	}

	phpProfile = profile{
		functions: compile(`\bfunction\s+&?(?P<name>\w+)\s*\(`),
		classes:   compile(`\b(?:class|interface|trait|enum)\s+(?P<name>\w+)`),
		imports: compile(
			`^\s*use\s+(?P<name>[\w\\]+)`,
			`^\s*(?:require|require_once|include|include_once)\s*\(?\s*['"](?P<name>[^'"]+)['"]`,
		),
		block: blockBraces,
	}

	rustProfile = profile{
		functions: compile(`\bfn\s+(?P<name>\w+)\s*[(<]`),
		classes: compile(
			`\bimpl(?:<[^>]*>)?\s+(?:[\w:]+(?:<[^>]*>)?\s+for\s+)?(?P<name>\w+)`,
			`\b(?:struct|enum|trait|union)\s+(?P<name>\w+)`,
		),
		imports: compile(`^\s*(?:pub\s+)?use\s+(?P<name>[\w:]+)`),
		block:   blockBraces,
	}

	// fallbackProfile serves unknown language tags.
	fallbackProfile = profile{
		functions: compile(
			`\b(?:def|function|func|fn)\s+(?P<name>\w+)`,
			`(?P<name>\w+)\s*\([^)]*\)\s*\{`,
		),
		classes: compile(`\b(?:class|struct|interface)\s+(?P<name>\w+)`),
		block:   blockBraces,
	}
)

// profileFor returns the pattern set for lang.
func profileFor(lang domain.Language) profile {
	switch lang {
	case domain.LanguageJavaScript, domain.LanguageTypeScript, domain.LanguageTSX:
		return jsProfile
	case domain.LanguagePython:
		return pythonProfile
	case domain.LanguageJava, domain.LanguageKotlin, domain.LanguageCSharp,
		domain.LanguageScala, domain.LanguageSwift:
		return jvmProfile
	case domain.LanguageGo:
		return goProfile
	case domain.LanguageC, domain.LanguageCPP:
		return cProfile
	case domain.LanguageRuby:
		return rubyProfile
	case domain.LanguagePHP:
		return phpProfile
	case domain.LanguageRust:
		return rustProfile
	default:
		return fallbackProfile
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// decisionRe matches one decision point: a branch, loop, handler,
// boolean operator or ternary.
var decisionRe = regexp.MustCompile(
	`\b(?:if|elif|elsif|for|foreach|while|until|case|when|catch|except|rescue|and|or)\b|&&|\|\||\s\?\s`,
)
