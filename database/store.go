package database

import (
	"context"
	"time"

	"order-analyst/config"
	apperrors "order-analyst/errors"
)

// RunRecord is the metadata of one traced assistant run.
type RunRecord struct {
	ID          string
	Name        string
	Project     string
	Start       time.Time
	End         time.Time
	Error       string
	TotalTokens int
	Tools       []string
}

func (r RunRecord) Duration() time.Duration { return r.End.Sub(r.Start) }

// TraceStore persists run metadata so a benchmark can look runs up by name
// after the fact.
type TraceStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, project string, since time.Time) ([]RunRecord, error)
	Close() error
}

// EmbeddingCache persists embedding vectors keyed by content hash.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, key string, vec []float32) error
}

// Store is what both backends provide.
type Store interface {
	TraceStore
	EmbeddingCache
}

// Open connects to the backend selected by TRACE_STORE and ensures its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.TraceStore {
	case "postgres":
		s, err := NewPostgresStore(cfg.TraceStoreDSN)
		if err != nil {
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLiteStore(cfg.TraceStoreDSN)
		if err != nil {
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		return s, nil
	default:
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unknown trace store %q", cfg.TraceStore)
	}
}
