package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"chunker/types"
)

var ErrUnknownColumn = errors.New("unknown config column")

// ConfigColumns are the llm_config columns SetConfig may write.
var ConfigColumns = []string{"llm_url", "llm_model", "prompt_str"}

type DBStorer interface {
	GetConfig(context.Context) (*types.LLMConfig, error)
	SetConfig(context.Context, map[string]any) (*types.LLMConfig, error)
	GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error)
	SaveEmbedding(ctx context.Context, model, text string, vec []float32) error
	Close() error
}

// Pool is the part of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	pool   Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return NewPostgresStoreWithPool(pool, logger), nil
}

func NewPostgresStoreWithPool(pool Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}
}

const selectConfig = `SELECT COALESCE(llm_url, ''), COALESCE(llm_model, ''), COALESCE(prompt_str, '')
	FROM llm_config WHERE id = 1`

// GetConfig returns the stored LLM settings, or nil when none were saved.
func (p *PostgresStore) GetConfig(ctx context.Context) (*types.LLMConfig, error) {
	cfg := &types.LLMConfig{}
	err := p.pool.QueryRow(ctx, selectConfig).Scan(&cfg.Url, &cfg.Model, &cfg.PromptStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

// SetConfig upserts the given columns of the single config row and returns
// the resulting settings.
func (p *PostgresStore) SetConfig(ctx context.Context, values map[string]any) (*types.LLMConfig, error) {
	if len(values) == 0 {
		return p.GetConfig(ctx)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		if !slices.Contains(ConfigColumns, col) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)

	var (
		placeholders = make([]string, len(cols))
		updates      = make([]string, len(cols))
		args         = make([]any, len(cols))
	)
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
		args[i] = values[col]
	}

	query := fmt.Sprintf(`INSERT INTO llm_config (id, %s) VALUES (1, %s)
		ON CONFLICT (id) DO UPDATE SET %s, updated_at = now()
		RETURNING COALESCE(llm_url, ''), COALESCE(llm_model, ''), COALESCE(prompt_str, '')`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	cfg := &types.LLMConfig{}
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&cfg.Url, &cfg.Model, &cfg.PromptStr); err != nil {
		return nil, fmt.Errorf("set config: %w", err)
	}
	p.logger.Info("llm config updated", "columns", cols)
	return cfg, nil
}

// EmbeddingKey derives a stable cache key from the model and text.
func EmbeddingKey(model, text string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(model+"\x00"+text))
}

func (p *PostgresStore) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := p.pool.QueryRow(ctx, "SELECT embedding FROM embedding_cache WHERE id = $1", EmbeddingKey(model, text)).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

func (p *PostgresStore) SaveEmbedding(ctx context.Context, model, text string, vec []float32) error {
	query := `INSERT INTO embedding_cache (id, model, embedding) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`
	_, err := p.pool.Exec(ctx, query, EmbeddingKey(model, text), model, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS llm_config (
		id INTEGER PRIMARY KEY,
		llm_url TEXT,
		llm_model TEXT,
		prompt_str TEXT,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS embedding_cache (
		id UUID PRIMARY KEY,
		model TEXT NOT NULL,
		embedding vector NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_embedding_cache_model ON embedding_cache(model);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	if err := p.createTables(ctx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}
