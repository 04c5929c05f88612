package postprocessors

import (
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/postprocessors/chunker"
	"github.com/custodia-labs/testctx/internal/postprocessors/keywords"
)

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("keywords", buildKeywords)
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - max_chars (int): Chunk size bound in characters (default: 1500)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "max_chars"); size > 0 {
			opts = append(opts, chunker.WithMaxChars(size))
		}
	}

	return chunker.New(opts...), nil
}

// buildKeywords creates the keyword annotation processor. It takes no config.
func buildKeywords(_ map[string]any) (driven.PostProcessor, error) {
	return keywords.New(), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
