package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

type SQLConfig struct {
	Driver string `envconfig:"DRIVER" split_words:"true" default:"postgres"`
	DSN    string `envconfig:"DSN" split_words:"true" required:"true"`
}

type sessionRecord struct {
	bun.BaseModel `bun:"table:chat_sessions,alias:cs"`

	SessionID string    `bun:"session_id,pk"`
	UserID    string    `bun:"user_id"`
	Status    string    `bun:"status,notnull"`
	Document  string    `bun:"document,type:text,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLStore persists sessions as JSON documents in a relational table via bun. It runs on
// Postgres in production and SQLite locally.
type SQLStore struct {
	db   *bun.DB
	opts storeOptions
}

// OpenSQL opens a bun database for driver "postgres" or "sqlite".
func OpenSQL(cfg SQLConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "postgres", "pg":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case "sqlite":
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLStore creates the sessions table if needed.
func NewSQLStore(ctx context.Context, db *bun.DB, opts ...StoreOption) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	o, err := applyStoreOptions(opts)
	if err != nil {
		return nil, err
	}
	if _, err := db.NewCreateTable().Model((*sessionRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLStore{db: db, opts: o}, nil
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	var rec sessionRecord
	err := s.db.NewSelect().Model(&rec).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	if !rec.ExpiresAt.IsZero() && !s.opts.now().Before(rec.ExpiresAt) {
		return nil, ErrStateNotFound
	}
	return decodeSession([]byte(rec.Document))
}

func (s *SQLStore) Save(ctx context.Context, st *Session) error {
	now := s.opts.now()
	payload, err := encodeSession(st, now)
	if err != nil {
		return err
	}
	rec := &sessionRecord{
		SessionID: st.SessionID,
		UserID:    st.UserID,
		Status:    string(st.Status),
		Document:  string(payload),
		UpdatedAt: now.UTC(),
	}
	if s.opts.ttl > 0 {
		rec.ExpiresAt = now.Add(s.opts.ttl).UTC()
	}
	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("status = EXCLUDED.status").
		Set("document = EXCLUDED.document").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := s.db.NewDelete().Model((*sessionRecord)(nil)).Where("session_id = ?", sessionID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
