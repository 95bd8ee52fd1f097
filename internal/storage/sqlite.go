package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GuiaBolso/darwin"
	"github.com/diegoclair/sqlmigrator"
	_ "modernc.org/sqlite"

	"resetbot/internal/reset"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := sqlmigrator.New(db, darwin.SqliteDialect{}).Migrate(sqlFiles, "sql"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (reset.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, frequency, name, emoji, time, day, timestamp, slots
		   FROM events ORDER BY frequency, position`)
	if err != nil {
		return reset.State{}, unavailable("load events", err)
	}
	defer rows.Close()

	var st reset.State
	for rows.Next() {
		var (
			e     reset.Event
			freq  string
			slots string
		)
		if err := rows.Scan(&e.ID, &freq, &e.Name, &e.Emoji, &e.Time, &e.Day, &e.Timestamp, &slots); err != nil {
			return reset.State{}, unavailable("load events", err)
		}
		if slots != "" && slots != "[]" {
			if err := json.Unmarshal([]byte(slots), &e.Slots); err != nil {
				return reset.State{}, unavailable("load events", fmt.Errorf("event %s slots: %w", e.ID, err))
			}
		}
		switch reset.Frequency(freq) {
		case reset.Daily:
			st.Daily = append(st.Daily, e)
		case reset.Weekly:
			st.Weekly = append(st.Weekly, e)
		default:
			s.log.Warn("skipping event with unknown frequency", logx.String("id", e.ID), logx.String("frequency", freq))
		}
	}
	if err := rows.Err(); err != nil {
		return reset.State{}, unavailable("load events", err)
	}
	st.Normalize()
	return st, nil
}

// Save replaces both lists in one transaction; position keeps insertion order.
func (s *sqliteStore) Save(ctx context.Context, st reset.State) error {
	st = st.Clone()
	st.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("save events", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return unavailable("save events", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events(id, frequency, position, name, emoji, time, day, timestamp, slots)
		 VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return unavailable("save events", err)
	}
	defer stmt.Close()

	for _, list := range [][]reset.Event{st.Daily, st.Weekly} {
		for i, e := range list {
			slots := "[]"
			if len(e.Slots) > 0 {
				b, _ := json.Marshal(e.Slots)
				slots = string(b)
			}
			if _, err := stmt.ExecContext(ctx, e.ID, string(e.Frequency), i, e.Name, e.Emoji, e.Time, e.Day, e.Timestamp, slots); err != nil {
				return unavailable("save events", fmt.Errorf("insert %s: %w", e.Name, err))
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("save events", err)
	}
	return nil
}

func (s *sqliteStore) BoardRef(ctx context.Context, kind string) (transport.MessageRef, bool, error) {
	var ref transport.MessageRef
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, thread_id, message_id FROM boards WHERE kind = ?`, kind,
	).Scan(&ref.ChatID, &ref.ThreadID, &ref.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return transport.MessageRef{}, false, nil
	}
	if err != nil {
		return transport.MessageRef{}, false, err
	}
	return ref, true, nil
}

func (s *sqliteStore) SetBoardRef(ctx context.Context, kind string, ref transport.MessageRef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards(kind, chat_id, thread_id, message_id) VALUES(?,?,?,?)
		 ON CONFLICT(kind) DO UPDATE SET chat_id=excluded.chat_id, thread_id=excluded.thread_id, message_id=excluded.message_id`,
		kind, ref.ChatID, ref.ThreadID, ref.MessageID,
	)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, transport, actor_id, actor_name, chat_id, action, target, ok, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Transport, e.ActorID, nullStr(e.ActorName), e.ChatID,
		e.Action, e.Target, e.OK, nullStr(e.Error),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
