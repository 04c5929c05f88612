package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

var (
	embeddingModel  string
	embeddingAPIKey string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the embedding provider, similarity index and
retrieval limits.

Settings live in ~/.testctx/config.toml. Environment variables such as
OPENAI_API_KEY and TESTCTX_EMBEDDING_PROVIDER override the file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding [provider]",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider used for semantic ranking.

Providers:
  hashing  - Offline feature hashing (default, no setup required)
  ollama   - Local Ollama server
  openai   - OpenAI or a compatible API (requires an API key)
  none     - Disable embeddings; ranking uses keyword overlap

Without an argument an interactive menu is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettingsEmbedding,
}

var settingsIndexCmd = &cobra.Command{
	Use:   "index <backend>",
	Short: "Select the similarity index backend",
	Long: `Select where chunk embeddings are stored and searched.

Backends:
  sqlite  - Stored alongside version history (default)
  memory  - Process memory only; rebuilt on every run
  qdrant  - Remote Qdrant collection (set index.qdrant_addr or QDRANT_ADDR)`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsIndex,
}

func init() {
	settingsEmbeddingCmd.Flags().StringVar(&embeddingModel, "model", "", "embedding model (default depends on provider)")
	settingsEmbeddingCmd.Flags().StringVar(&embeddingAPIKey, "api-key", "", "API key (prompted when required and not set)")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsIndexCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if err := requireService(settingsService != nil, "settings"); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	if settings.Embedding.Model != "" {
		cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	}
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Dimensions > 0 {
		cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !settings.Embedding.IsConfigured() {
		status = "not configured (keyword ranking)"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Printf("  Timeout: %s, retries: %d\n", settings.Resilience.Timeout, settings.Resilience.MaxRetries)
	if settings.Resilience.RatePerSecond > 0 {
		cmd.Printf("  Rate limit: %.1f/s\n", settings.Resilience.RatePerSecond)
	}
	cmd.Println()

	cmd.Println("[Index]")
	cmd.Printf("  Backend: %s\n", settings.Index.Backend)
	if settings.Index.Backend == domain.IndexBackendQdrant {
		cmd.Printf("  Qdrant: %s (collection %s)\n", settings.Index.QdrantAddr, settings.Index.QdrantCollection)
	}
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Chunk size: %d chars\n", settings.Chunking.MaxChars)
	cmd.Printf("  Top K: %d\n", settings.Retrieval.TopK)
	cmd.Printf("  Max chars: %d\n", settings.Retrieval.MaxChars)
	cmd.Printf("  Change boost: %.2f\n", settings.Retrieval.ChangeBoost)
	cmd.Printf("  Min score: %.2f\n", settings.Retrieval.MinScore)
	cmd.Println()

	cmd.Println("[Ingest]")
	cmd.Printf("  Max file size: %d bytes\n", settings.Ingest.MaxFileSize)
	cmd.Printf("  Concurrency: %d\n", settings.Ingest.Concurrency)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'testctx settings embedding' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, args []string) error {
	if err := requireService(settingsService != nil, "settings"); err != nil {
		return err
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	var provider domain.AIProvider
	if len(args) == 1 {
		provider = domain.AIProvider(strings.ToLower(args[0]))
		if !provider.IsValid() {
			return fmt.Errorf("unknown embedding provider %q", args[0])
		}
	} else {
		cmd.Println("Select Embedding Provider")
		providers := domain.AllEmbeddingProviders()
		for i, p := range providers {
			cmd.Printf("  %d. %s\n", i+1, p.Description())
		}
		cmd.Print("\nEnter choice [1]: ")
		idx := parseChoice(readLine(reader), len(providers), 1)
		provider = providers[idx-1]

		if embeddingModel == "" && provider != domain.AIProviderNone {
			defaultModel := domain.DefaultEmbeddingModels()[provider]
			cmd.Printf("Enter model name [%s]: ", defaultModel)
			embeddingModel = readLine(reader)
		}
	}

	apiKey := embeddingAPIKey
	if provider.RequiresAPIKey() && apiKey == "" {
		if current, err := settingsService.Get(); err == nil {
			apiKey = current.Embedding.APIKey
		}
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(cmd, reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
	}

	if err := settingsService.SetEmbeddingProvider(provider, embeddingModel, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	if validateEmbedding != nil && provider != domain.AIProviderNone {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		cmd.Print("Validating configuration... ")
		if err := validateEmbedding(cmd.Context(), &settings.Embedding); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			return fmt.Errorf("embedding configuration validation failed: %w", err)
		}
		cmd.Println("OK")
	}

	cmd.Printf("Embedding provider configured: %s\n", provider.Description())
	cmd.Println("Run 'testctx rebuild' to re-embed existing documents.")
	return nil
}

func runSettingsIndex(cmd *cobra.Command, args []string) error {
	if err := requireService(settingsService != nil, "settings"); err != nil {
		return err
	}

	backend := domain.IndexBackend(strings.ToLower(args[0]))
	if err := settingsService.SetIndexBackend(backend); err != nil {
		return fmt.Errorf("failed to set index backend: %w", err)
	}
	cmd.Printf("Index backend set to: %s\n", backend)
	cmd.Println("Run 'testctx rebuild' to populate the new index.")
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when input is a terminal and falls back
// to a plain line read otherwise.
func readPassword(cmd *cobra.Command, reader *bufio.Reader) string {
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
