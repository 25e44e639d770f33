package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	APIKey             string // Bearer key for /api routes (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// PublicBaseURL is the externally reachable base of this server,
	// used to build locally-served video URLs when the remote upload
	// fails or no storage credentials were provided.
	PublicBaseURL string

	// Directories
	WorkDir     string // per-job render scratch directories live here
	OutputDir   string // durable local backups of finished renders
	ProjectsDir string // JSON project records

	// Supabase. The URL and service role key, when set, override any
	// endpoint or key a caller passes with the render request, so
	// requests go to this deployment's bucket regardless.
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// Rendering
	RenderFPS int

	// OpenAI (Whisper transcription; optional — the /api/transcribe
	// endpoint returns 503 without it)
	OpenAIKey string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "5001"),
		APIKey:             getEnv("VPS_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		WorkDir:            getEnv("WORK_DIR", "uploads/temp"),
		OutputDir:          getEnv("OUTPUT_DIR", "output"),
		ProjectsDir:        getEnv("PROJECTS_DIR", "projects"),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_STORAGE_BUCKET", "renders"),
		RenderFPS:          getEnvInt("RENDER_FPS", 30),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.APIPort
	}

	if cfg.RenderFPS != 25 && cfg.RenderFPS != 30 {
		return nil, fmt.Errorf("RENDER_FPS must be 25 or 30, got %d", cfg.RenderFPS)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
