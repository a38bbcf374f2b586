// Package journal keeps a local SQLite history of finished turns.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"moodvox/internal/emotion"
	"moodvox/internal/turn"
)

type Config struct {
	Path          string
	RetentionDays int
	MaxTurns      int
}

type Store struct {
	db    *sql.DB
	cfg   Config
	clock func() time.Time
}

// Open creates the database if needed and applies retention once.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("Journal prune on start failed", "err", err)
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    audio_ms INTEGER NOT NULL,
    pitch_hz REAL,
    energy REAL NOT NULL,
    transcript TEXT NOT NULL,
    text_label TEXT NOT NULL,
    text_emotion TEXT NOT NULL,
    audio_emotion TEXT NOT NULL,
    emotion TEXT NOT NULL,
    action TEXT NOT NULL,
    reply TEXT NOT NULL,
    error TEXT NOT NULL,
    elapsed_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_started ON turns(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished turn and trims the history.
func (s *Store) Record(ctx context.Context, r turn.Report) error {
	started := r.StartedAt
	if started.IsZero() {
		started = s.clock()
	}

	var pitch sql.NullFloat64
	if r.PitchHz != nil {
		pitch = sql.NullFloat64{Float64: *r.PitchHz, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(id, started_at, audio_ms, pitch_hz, energy, transcript, text_label,
		   text_emotion, audio_emotion, emotion, action, reply, error, elapsed_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		r.ID, started.UnixMilli(), r.AudioLength.Milliseconds(), pitch, r.Energy, r.Transcript, r.TextLabel,
		r.TextEmotion.String(), r.AudioEmotion.String(), r.Emotion.String(), r.Action, r.Reply, r.Error,
		r.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if s.cfg.MaxTurns > 0 {
		return s.Prune(ctx)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]turn.Report, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, audio_ms, pitch_hz, energy, transcript, text_label,
		   text_emotion, audio_emotion, emotion, action, reply, error, elapsed_ms
		 FROM turns ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []turn.Report
	for rows.Next() {
		var (
			r                         turn.Report
			started, audioMs, elapsed int64
			pitch                     sql.NullFloat64
			textEmo, audioEmo, final  string
		)
		if err := rows.Scan(&r.ID, &started, &audioMs, &pitch, &r.Energy, &r.Transcript, &r.TextLabel,
			&textEmo, &audioEmo, &final, &r.Action, &r.Reply, &r.Error, &elapsed); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.AudioLength = time.Duration(audioMs) * time.Millisecond
		r.Elapsed = time.Duration(elapsed) * time.Millisecond
		if pitch.Valid {
			p := pitch.Float64
			r.PitchHz = &p
		}
		r.TextEmotion, _ = emotion.Normalize(textEmo)
		r.AudioEmotion, _ = emotion.Normalize(audioEmo)
		r.Emotion, _ = emotion.Normalize(final)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune drops turns older than RetentionDays and all but the newest
// MaxTurns. Zero disables either rule.
func (s *Store) Prune(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE started_at < ?`, cutoff.UnixMilli()); err != nil {
			return err
		}
	}
	if s.cfg.MaxTurns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE id IN (
			SELECT id FROM turns ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxTurns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
