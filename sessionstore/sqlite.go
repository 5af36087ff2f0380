package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/climate-crusade/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const defaultSlot = "default"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		slot       TEXT PRIMARY KEY,
		payload    BLOB NOT NULL,
		sealed     INTEGER NOT NULL DEFAULT 0,
		user_id    TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// SQLiteStore persists the signed-in session in a local SQLite file. When a seal key
// is configured the tokens are encrypted at rest.
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
	slot   string
	logger zerolog.Logger
}

type Option func(*SQLiteStore)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *SQLiteStore) {
		s.logger = logger.With().Str("component", "sessionstore").Logger()
	}
}

// WithSlot keeps several independent sessions in one file.
func WithSlot(slot string) Option {
	return func(s *SQLiteStore) {
		s.slot = slot
	}
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath, sealKey string, options ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		slot:   defaultSlot,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	if sealKey == "" {
		s.logger.Warn().Msg("no seal key configured, session tokens are stored unencrypted")
	} else {
		sealer, err := newSealer(sealKey)
		if err != nil {
			return nil, err
		}
		s.sealer = sealer
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, errors.Wrapf(err, "[NewSQLiteStore] create directory for %s", dbPath)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewSQLiteStore] open %s", dbPath)
	}
	// One connection: ":memory:" databases are per-connection, and there is a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "[NewSQLiteStore] migrate")
		}
	}

	s.db = db
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the stored session, or nil when none is stored.
func (s *SQLiteStore) Load(ctx context.Context) (*session.Session, error) {
	var (
		payload []byte
		sealed  bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, sealed FROM sessions WHERE slot = ?`, s.slot,
	).Scan(&payload, &sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[SQLiteStore.Load]")
	}

	if sealed {
		if s.sealer == nil {
			return nil, errors.Wrap(ErrUnseal, "[SQLiteStore.Load] stored session is sealed but no seal key is configured")
		}
		if payload, err = s.sealer.open(payload, []byte(s.slot)); err != nil {
			return nil, errors.Wrap(err, "[SQLiteStore.Load]")
		}
	}

	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, errors.Wrap(err, "[SQLiteStore.Load] decode")
	}
	return &sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return s.Clear(ctx)
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "[SQLiteStore.Save] encode")
	}
	sealed := false
	if s.sealer != nil {
		if payload, err = s.sealer.seal(payload, []byte(s.slot)); err != nil {
			return err
		}
		sealed = true
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (slot, payload, sealed, user_id, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
		   payload = excluded.payload,
		   sealed = excluded.sealed,
		   user_id = excluded.user_id,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		s.slot, payload, sealed, sess.User.ID, sess.ExpiresAt, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "[SQLiteStore.Save]")
	}
	s.logger.Debug().Str("user_id", sess.User.ID).Bool("sealed", sealed).Msg("session stored")
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE slot = ?`, s.slot); err != nil {
		return errors.Wrap(err, "[SQLiteStore.Clear]")
	}
	return nil
}
