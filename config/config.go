package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Server configures the chunking service.
type Server struct {
	ServerAddr string `koanf:"server_addr" validate:"required"`

	PgHost   string `koanf:"pg_host"`
	PgPort   int    `koanf:"pg_port" validate:"omitempty,gt=0,lte=65535"`
	PgUser   string `koanf:"pg_user"`
	PgPass   string `koanf:"pg_pass"`
	PgDBName string `koanf:"pg_db_name"`

	LLMURL     string        `koanf:"llm_url" validate:"omitempty,url"`
	LLMModel   string        `koanf:"llm_model"`
	LLMTimeout time.Duration `koanf:"llm_timeout" validate:"gt=0"`

	EmbeddingURL   string `koanf:"ollama_embedding_url" validate:"omitempty,url"`
	EmbeddingModel string `koanf:"ollama_embedding_model"`
	VisionURL      string `koanf:"ollama_vl_url" validate:"omitempty,url"`
	VisionModel    string `koanf:"ollama_vl_model"`

	VLMConcurrencyLimit int     `koanf:"vlm_concurrency_limit" validate:"gt=0"`
	PDFCropTop          float64 `koanf:"pdf_crop_top" validate:"gte=0"`
	PDFCropBottom       float64 `koanf:"pdf_crop_bottom" validate:"gte=0"`
	TokenizerEncoding   string  `koanf:"tokenizer_encoding"`

	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogJSON  bool   `koanf:"log_json"`
}

// HasStore reports whether a Postgres connection is configured.
func (s Server) HasStore() bool {
	return s.PgHost != ""
}

func (s Server) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		s.PgHost, s.PgPort, s.PgUser, s.PgPass, s.PgDBName)
}

func DefaultServer() Server {
	return Server{
		ServerAddr:          ":8000",
		PgPort:              5432,
		LLMTimeout:          2 * time.Minute,
		VLMConcurrencyLimit: 5,
		TokenizerEncoding:   "cl100k_base",
		LogLevel:            "info",
	}
}

// Workbench configures the interactive client.
type Workbench struct {
	ChunkerURL     string        `koanf:"chunker_url" validate:"required,url"`
	ExportDir      string        `koanf:"export_dir" validate:"required"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	LogLevel       string        `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogJSON        bool          `koanf:"log_json"`
}

func DefaultWorkbench() Workbench {
	return Workbench{
		ChunkerURL:     "http://localhost:8000",
		ExportDir:      ".",
		RequestTimeout: 2 * time.Minute,
		LogLevel:       "warn",
	}
}

// Loader configures the folder ingestion service.
type Loader struct {
	ChunkerURL     string        `koanf:"chunker_url" validate:"required,url"`
	SourceDir      string        `koanf:"source_dir" validate:"required"`
	ArchiveDir     string        `koanf:"archive_dir" validate:"required"`
	BadDir         string        `koanf:"bad_dir" validate:"required"`
	MonitoringTime time.Duration `koanf:"monitoring_time" validate:"gte=0"`
	PollInterval   time.Duration `koanf:"poll_interval" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	ChunkingMethod  string `koanf:"chunking_method" validate:"omitempty,oneof=fixed_size semantic recursive"`
	ChunkSize       int    `koanf:"chunk_size" validate:"gte=0"`
	ChunkOverlap    int    `koanf:"chunk_overlap" validate:"gte=0"`
	CleanText       bool   `koanf:"clean_text"`
	GenerateSummary bool   `koanf:"generate_summary"`

	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogJSON  bool   `koanf:"log_json"`
}

func DefaultLoader() Loader {
	return Loader{
		ChunkerURL:     "http://localhost:8000",
		SourceDir:      "./data/source",
		ArchiveDir:     "./data/archive",
		BadDir:         "./data/bad",
		MonitoringTime: 5 * time.Second,
		PollInterval:   time.Second,
		RequestTimeout: 10 * time.Minute,
		ChunkingMethod: "fixed_size",
		ChunkSize:      500,
		ChunkOverlap:   50,
		LogLevel:       "info",
	}
}

var validate = validator.New()

// LoadServer reads .env files, defaults and environment into a Server.
func LoadServer(files ...string) (Server, error) {
	cfg := DefaultServer()
	err := load(&cfg, "", files...)
	return cfg, err
}

// LoadWorkbench reads .env files, defaults and environment into a Workbench.
func LoadWorkbench(files ...string) (Workbench, error) {
	cfg := DefaultWorkbench()
	err := load(&cfg, "", files...)
	return cfg, err
}

// LoadLoader reads .env files, defaults and environment into a Loader.
func LoadLoader(files ...string) (Loader, error) {
	cfg := DefaultLoader()
	err := load(&cfg, "", files...)
	return cfg, err
}

func load(dst any, prefix string, files ...string) error {
	if err := loadDotEnv(files...); err != nil {
		return err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(dst, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	known := make(map[string]struct{}, len(k.Keys()))
	for _, key := range k.Keys() {
		known[key] = struct{}{}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, prefix))
			if _, ok := known[key]; !ok {
				return "", nil
			}
			return key, value
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", dst); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loadDotEnv loads the given files, or .env when none are given.
// A missing default .env is not an error.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file loaded", "error", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("error loading env files: %w", err)
	}
	return nil
}

// ValidationErrors flattens a validator error into field messages.
func ValidationErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}
