package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every environment-driven knob for the batch builder.
// CLI flags layer on top of it in cmd/main.go.
type Config struct {
	AppEnv string

	SerperAPIKey   string
	SerperEndpoint string
	GoogleAPIKey   string
	SearchEngineID string
	SearchMarket   string
	OverridesFile  string

	LLMProvider      string
	GeminiAPIKey     string
	DefaultLLMModel  string
	ComposeMaxRetry  int
	RequestTimeout   time.Duration
	RewriteQueries   bool
	TemplateFallback bool

	EnablePDFText  string
	PDFTextAPIKey  string
	PDFTextSecret  string
	PDFTextBaseURL string

	CacheDir        string
	PersonaRegistry string
	MaxWorkers      int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string) bool {
	switch getenv(key, "0") {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func Load() Config {
	return Config{
		AppEnv: getenv("APP_ENV", "development"),

		SerperAPIKey:   os.Getenv("SERPER_API_KEY"),
		SerperEndpoint: getenv("SERPER_ENDPOINT", "https://google.serper.dev/search"),
		GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		SearchEngineID: os.Getenv("SEARCH_ENGINE_ID"),
		SearchMarket:   getenv("SEARCH_MARKET", "us"),
		OverridesFile:  os.Getenv("SEARCH_OVERRIDES_FILE"),

		LLMProvider:      getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel:  getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),
		ComposeMaxRetry:  getenvInt("COMPOSE_MAX_RETRIES", 3),
		RequestTimeout:   time.Duration(getenvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		RewriteQueries:   getenvBool("LLM_REWRITE_SEARCH_QUERY"),
		TemplateFallback: getenvBool("FALLBACK_TO_TEMPLATE"),

		EnablePDFText:  getenv("ENABLE_PDF_PARSING", "0"),
		PDFTextAPIKey:  os.Getenv("PDFTEXT_API_KEY"),
		PDFTextSecret:  os.Getenv("PDFTEXT_API_SECRET"),
		PDFTextBaseURL: os.Getenv("PDFTEXT_ENDPOINT"),

		CacheDir:        getenv("CACHE_DIR", "ground_truth_cache"),
		PersonaRegistry: os.Getenv("PERSONA_REGISTRY"),
		MaxWorkers:      getenvInt("QUERY_AGENT_MAX_WORKERS", 1),
	}
}

// PDFTextEnabled reports whether evidence PDF extraction was switched on.
func (c Config) PDFTextEnabled() bool {
	switch c.EnablePDFText {
	case "1", "true", "yes":
		return true
	}
	return false
}
