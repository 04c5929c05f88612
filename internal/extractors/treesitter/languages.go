//go:build cgo

package treesitter

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// grammar holds the node tables for one language.
type grammar struct {
	language  func() *sitter.Language
	functions map[string]bool
	classes   map[string]bool
	imports   map[string]bool
	decisions map[string]bool
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var jsDecisions = set(
	"if_statement", "for_statement", "for_in_statement", "while_statement",
	"do_statement", "switch_case", "catch_clause", "ternary_expression",
	"binary_expression",
)

var grammars = map[domain.Language]grammar{
	domain.LanguagePython: {
		language:  python.GetLanguage,
		functions: set("function_definition"),
		classes:   set("class_definition"),
		imports:   set("import_statement", "import_from_statement"),
		decisions: set(
			"if_statement", "elif_clause", "for_statement", "while_statement",
			"except_clause", "boolean_operator", "conditional_expression",
			"list_comprehension", "dictionary_comprehension", "set_comprehension",
			"generator_expression",
		),
	},
	domain.LanguageJavaScript: {
		language:  javascript.GetLanguage,
		functions: set("function_declaration", "generator_function_declaration", "method_definition"),
		classes:   set("class_declaration"),
		imports:   set("import_statement"),
		decisions: jsDecisions,
	},
	domain.LanguageTypeScript: {
		language:  typescript.GetLanguage,
		functions: set("function_declaration", "generator_function_declaration", "method_definition"),
		classes:   set("class_declaration", "abstract_class_declaration", "interface_declaration", "enum_declaration"),
		imports:   set("import_statement"),
		decisions: jsDecisions,
	},
	domain.LanguageTSX: {
		language:  tsx.GetLanguage,
		functions: set("function_declaration", "generator_function_declaration", "method_definition"),
		classes:   set("class_declaration", "abstract_class_declaration", "interface_declaration", "enum_declaration"),
		imports:   set("import_statement"),
		decisions: jsDecisions,
	},
	domain.LanguageJava: {
		language:  java.GetLanguage,
		functions: set("method_declaration", "constructor_declaration"),
		classes:   set("class_declaration", "interface_declaration", "enum_declaration", "record_declaration"),
		imports:   set("import_declaration"),
		decisions: set(
			"if_statement", "for_statement", "enhanced_for_statement", "while_statement",
			"do_statement", "switch_block_statement_group", "switch_rule", "catch_clause",
			"ternary_expression", "binary_expression",
		),
	},
	domain.LanguageKotlin: {
		language:  kotlin.GetLanguage,
		functions: set("function_declaration"),
		classes:   set("class_declaration", "object_declaration"),
		imports:   set("import_header"),
		decisions: set(
			"if_expression", "when_entry", "for_statement", "while_statement",
			"do_while_statement", "catch_block", "binary_expression",
			"conjunction_expression", "disjunction_expression", "elvis_expression",
		),
	},
	domain.LanguageRust: {
		language:  rust.GetLanguage,
		functions: set("function_item"),
		classes:   set("struct_item", "enum_item", "trait_item", "impl_item"),
		imports:   set("use_declaration"),
		decisions: set(
			"if_expression", "match_arm", "while_expression", "loop_expression",
			"for_expression", "binary_expression",
		),
	},
}

// arrowValueTypes are variable initialisers treated as named functions.
var arrowValueTypes = set("arrow_function", "function_expression", "function", "generator_function")
