package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"a.py", LanguagePython},
		{"web/app.jsx", LanguageJavaScript},
		{"web/app.ts", LanguageTypeScript},
		{"web/view.tsx", LanguageTSX},
		{"Main.java", LanguageJava},
		{"engine.CC", LanguageCPP},
		{"prog.c", LanguageC},
		{"Service.cs", LanguageCSharp},
		{"main.go", LanguageGo},
		{"lib.rs", LanguageRust},
		{"app.rb", LanguageRuby},
		{"index.php", LanguagePHP},
		{"View.swift", LanguageSwift},
		{"Build.kt", LanguageKotlin},
		{"Job.scala", LanguageScala},
		{"README.md", LanguageUnknown},
		{"Makefile", LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
		})
	}
}

func TestParseLanguage(t *testing.T) {
	assert.Equal(t, LanguageUnknown, ParseLanguage(""))
	assert.Equal(t, LanguagePython, ParseLanguage("py"))
	assert.Equal(t, LanguagePython, ParseLanguage("Python"))
	assert.Equal(t, LanguageGo, ParseLanguage("golang"))
	assert.Equal(t, LanguageGo, ParseLanguage("go"))
	assert.Equal(t, LanguageTypeScript, ParseLanguage("ts"))
	assert.Equal(t, LanguageCSharp, ParseLanguage("c#"))
	assert.Equal(t, Language("cobol"), ParseLanguage("COBOL"))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("x/y/z.go"))
	assert.False(t, IsSupported("notes.txt"))
}

func TestLanguage_String(t *testing.T) {
	assert.Equal(t, "unknown", LanguageUnknown.String())
	assert.Equal(t, "go", LanguageGo.String())
}
