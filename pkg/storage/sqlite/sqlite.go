// Package sqlite provides the SQLite-backed storage.Store. It is the
// default driver: a single file (or ":memory:") with no server to run.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity_entries (
	user_id       TEXT NOT NULL,
	category      TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (user_id, category, key)
);

CREATE TABLE IF NOT EXISTS user_facts (
	user_id       TEXT NOT NULL,
	fact_type     TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (user_id, fact_type, key)
);

CREATE TABLE IF NOT EXISTS self_memories (
	category      TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	importance    INTEGER NOT NULL DEFAULT 0,
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (category, key)
);

CREATE TABLE IF NOT EXISTS capabilities (
	name                 TEXT NOT NULL,
	domain               TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	proficiency          INTEGER NOT NULL DEFAULT 0,
	evidence             TEXT NOT NULL DEFAULT '[]',
	last_demonstrated_ms INTEGER,
	updated_at_ms        INTEGER NOT NULL,
	PRIMARY KEY (name, domain)
);

CREATE TABLE IF NOT EXISTS summaries (
	session_id    TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	summary       TEXT NOT NULL,
	tone          TEXT NOT NULL DEFAULT '',
	topics        TEXT NOT NULL DEFAULT '[]',
	open_threads  TEXT NOT NULL DEFAULT '[]',
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_user ON summaries(user_id, updated_at_ms);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at_ms);

CREATE TABLE IF NOT EXISTS session_messages (
	session_id    TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS memory_spots (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	memory_type     TEXT NOT NULL,
	key             TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '{}',
	confidence      REAL NOT NULL DEFAULT 0,
	importance      INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'extracted',
	extracted_at_ms INTEGER NOT NULL,
	reviewed_at_ms  INTEGER,
	applied_at_ms   INTEGER,
	UNIQUE (session_id, memory_type, key)
);
CREATE INDEX IF NOT EXISTS idx_spots_user_status ON memory_spots(user_id, status);
CREATE INDEX IF NOT EXISTS idx_spots_session ON memory_spots(session_id);
`

// Store implements storage.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the SQLite database at dbPath and
// migrates the schema. dbPath can be ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers from blocking the writer; busy_timeout retries
	// instead of returning SQLITE_BUSY when another process holds the file.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	// One connection: mattn/go-sqlite3 serializes writes anyway, and a
	// single conn keeps ":memory:" databases from splitting per conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func msOf(t time.Time) int64 {
	return t.UnixMilli()
}

func timeOf(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeOrNil(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := time.UnixMilli(ms.Int64).UTC()
	return &t
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func encodeMeta(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeMeta(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func (s *Store) ListIdentity(ctx context.Context, userID string) ([]memory.IdentityEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, category, key, value, updated_at_ms
		 FROM identity_entries WHERE user_id = ? ORDER BY category, key`, userID)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_identity", Err: err}
	}
	defer rows.Close()

	var out []memory.IdentityEntry
	for rows.Next() {
		var e memory.IdentityEntry
		var ms int64
		if err := rows.Scan(&e.UserID, &e.Category, &e.Key, &e.Value, &ms); err != nil {
			return nil, &storage.StorageError{Op: "list_identity", Err: err}
		}
		e.UpdatedAt = timeOf(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpsertIdentity(ctx context.Context, entry memory.IdentityEntry) error {
	if err := upsertIdentityTx(ctx, s.db, entry); err != nil {
		return &storage.StorageError{Op: "upsert_identity", Err: err}
	}
	return nil
}

// execer covers both *sql.DB and *sql.Tx so upserts can run standalone or
// inside ApplySpot's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertIdentityTx(ctx context.Context, e execer, entry memory.IdentityEntry) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO identity_entries (user_id, category, key, value, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, category, key) DO UPDATE SET
			value = excluded.value,
			updated_at_ms = excluded.updated_at_ms`,
		entry.UserID, entry.Category, entry.Key, entry.Value, msOf(entry.UpdatedAt))
	return err
}

func (s *Store) ListFacts(ctx context.Context, userID string) ([]memory.UserFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, fact_type, key, value, confidence, source, updated_at_ms
		 FROM user_facts WHERE user_id = ? ORDER BY fact_type, key`, userID)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_facts", Err: err}
	}
	defer rows.Close()

	var out []memory.UserFact
	for rows.Next() {
		var f memory.UserFact
		var ms int64
		if err := rows.Scan(&f.UserID, &f.FactType, &f.Key, &f.Value, &f.Confidence, &f.Source, &ms); err != nil {
			return nil, &storage.StorageError{Op: "list_facts", Err: err}
		}
		f.UpdatedAt = timeOf(ms)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) UpsertFact(ctx context.Context, fact memory.UserFact) error {
	if err := upsertFactTx(ctx, s.db, fact); err != nil {
		return &storage.StorageError{Op: "upsert_fact", Err: err}
	}
	return nil
}

func upsertFactTx(ctx context.Context, e execer, fact memory.UserFact) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO user_facts (user_id, fact_type, key, value, confidence, source, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, fact_type, key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			source = excluded.source,
			updated_at_ms = excluded.updated_at_ms`,
		fact.UserID, fact.FactType, fact.Key, fact.Value, fact.Confidence, fact.Source, msOf(fact.UpdatedAt))
	return err
}

func (s *Store) ListSelfMemories(ctx context.Context) ([]memory.SelfMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, key, value, importance, updated_at_ms
		 FROM self_memories ORDER BY category, key`)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_self_memories", Err: err}
	}
	defer rows.Close()

	var out []memory.SelfMemory
	for rows.Next() {
		var m memory.SelfMemory
		var ms int64
		if err := rows.Scan(&m.Category, &m.Key, &m.Value, &m.Importance, &ms); err != nil {
			return nil, &storage.StorageError{Op: "list_self_memories", Err: err}
		}
		m.UpdatedAt = timeOf(ms)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSelfMemory(ctx context.Context, m memory.SelfMemory) error {
	if err := upsertSelfTx(ctx, s.db, m); err != nil {
		return &storage.StorageError{Op: "upsert_self_memory", Err: err}
	}
	return nil
}

func upsertSelfTx(ctx context.Context, e execer, m memory.SelfMemory) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO self_memories (category, key, value, importance, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(category, key) DO UPDATE SET
			value = excluded.value,
			importance = excluded.importance,
			updated_at_ms = excluded.updated_at_ms`,
		m.Category, m.Key, m.Value, m.Importance, msOf(m.UpdatedAt))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapability(row rowScanner) (memory.Capability, error) {
	var c memory.Capability
	var evidence string
	var lastMs sql.NullInt64
	var ms int64
	if err := row.Scan(&c.Name, &c.Domain, &c.Description, &c.Proficiency, &evidence, &lastMs, &ms); err != nil {
		return c, err
	}
	c.Evidence = decodeStrings(evidence)
	c.LastDemonstrated = timeOrNil(lastMs)
	c.UpdatedAt = timeOf(ms)
	return c, nil
}

func (s *Store) ListCapabilities(ctx context.Context) ([]memory.Capability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, domain, description, proficiency, evidence, last_demonstrated_ms, updated_at_ms
		 FROM capabilities ORDER BY domain, name`)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_capabilities", Err: err}
	}
	defer rows.Close()

	var out []memory.Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, &storage.StorageError{Op: "list_capabilities", Err: err}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCapability(ctx context.Context, name, domain string) (*memory.Capability, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, domain, description, proficiency, evidence, last_demonstrated_ms, updated_at_ms
		 FROM capabilities WHERE name = ? AND domain = ?`, name, domain)

	c, err := scanCapability(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{Kind: "capability", Key: name + "/" + domain}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "get_capability", Err: err}
	}
	return &c, nil
}

func (s *Store) UpsertCapability(ctx context.Context, c memory.Capability) error {
	if err := upsertCapabilityTx(ctx, s.db, c); err != nil {
		return &storage.StorageError{Op: "upsert_capability", Err: err}
	}
	return nil
}

func upsertCapabilityTx(ctx context.Context, e execer, c memory.Capability) error {
	// MAX keeps proficiency monotone no matter what the caller passes.
	_, err := e.ExecContext(ctx,
		`INSERT INTO capabilities (name, domain, description, proficiency, evidence, last_demonstrated_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name, domain) DO UPDATE SET
			description = excluded.description,
			proficiency = MAX(capabilities.proficiency, excluded.proficiency),
			evidence = excluded.evidence,
			last_demonstrated_ms = excluded.last_demonstrated_ms,
			updated_at_ms = excluded.updated_at_ms`,
		c.Name, c.Domain, c.Description, c.Proficiency, encodeStrings(c.Evidence),
		msOrNil(c.LastDemonstrated), msOf(c.UpdatedAt))
	return err
}

func scanSummary(row rowScanner) (memory.ConversationSummary, error) {
	var sm memory.ConversationSummary
	var topics, threads string
	var ms int64
	if err := row.Scan(&sm.SessionID, &sm.UserID, &sm.Summary, &sm.Tone, &topics, &threads, &ms); err != nil {
		return sm, err
	}
	sm.Topics = decodeStrings(topics)
	sm.OpenThreads = decodeStrings(threads)
	sm.UpdatedAt = timeOf(ms)
	return sm, nil
}

func (s *Store) ListSummaries(ctx context.Context, userID string, limit int) ([]memory.ConversationSummary, error) {
	q := `SELECT session_id, user_id, summary, tone, topics, open_threads, updated_at_ms
		 FROM summaries WHERE user_id = ? ORDER BY updated_at_ms DESC, session_id ASC`
	args := []any{userID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_summaries", Err: err}
	}
	defer rows.Close()

	var out []memory.ConversationSummary
	for rows.Next() {
		sm, err := scanSummary(rows)
		if err != nil {
			return nil, &storage.StorageError{Op: "list_summaries", Err: err}
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *Store) GetSummary(ctx context.Context, sessionID string) (*memory.ConversationSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, summary, tone, topics, open_threads, updated_at_ms
		 FROM summaries WHERE session_id = ?`, sessionID)

	sm, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{Kind: "summary", Key: sessionID}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "get_summary", Err: err}
	}
	return &sm, nil
}

func (s *Store) UpsertSummary(ctx context.Context, sm memory.ConversationSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (session_id, user_id, summary, tone, topics, open_threads, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			summary = excluded.summary,
			tone = excluded.tone,
			topics = excluded.topics,
			open_threads = excluded.open_threads,
			updated_at_ms = excluded.updated_at_ms`,
		sm.SessionID, sm.UserID, sm.Summary, sm.Tone,
		encodeStrings(sm.Topics), encodeStrings(sm.OpenThreads), msOf(sm.UpdatedAt))
	if err != nil {
		return &storage.StorageError{Op: "upsert_summary", Err: err}
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*memory.Session, error) {
	var sess memory.Session
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at_ms, updated_at_ms FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &sess.Title, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{Kind: "session", Key: id}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "get_session", Err: err}
	}
	sess.CreatedAt = timeOf(created)
	sess.UpdatedAt = timeOf(updated)
	return &sess, nil
}

func (s *Store) UpsertSession(ctx context.Context, sess memory.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, title, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			updated_at_ms = excluded.updated_at_ms`,
		sess.ID, sess.UserID, sess.Title, msOf(sess.CreatedAt), msOf(sess.UpdatedAt))
	if err != nil {
		return &storage.StorageError{Op: "upsert_session", Err: err}
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, f storage.SessionFilter) ([]memory.Session, error) {
	q := `SELECT id, user_id, title, created_at_ms, updated_at_ms FROM sessions`
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.MinMessages > 0 {
		conds = append(conds, "(SELECT COUNT(*) FROM session_messages m WHERE m.session_id = sessions.id) >= ?")
		args = append(args, f.MinMessages)
	}
	if !f.UpdatedAfter.IsZero() {
		conds = append(conds, "updated_at_ms > ?")
		args = append(args, msOf(f.UpdatedAfter))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY updated_at_ms DESC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_sessions", Err: err}
	}
	defer rows.Close()

	var out []memory.Session
	for rows.Next() {
		var sess memory.Session
		var created, updated int64
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &created, &updated); err != nil {
			return nil, &storage.StorageError{Op: "list_sessions", Err: err}
		}
		sess.CreatedAt = timeOf(created)
		sess.UpdatedAt = timeOf(updated)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) AppendMessages(ctx context.Context, sessionID string, msgs ...memory.SessionMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.StorageError{Op: "append_messages", Err: err}
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return &storage.StorageError{Op: "append_messages", Err: err}
	}
	if exists == 0 {
		return storage.NotFoundError{Kind: "session", Key: sessionID}
	}

	var base int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID).Scan(&base)
	if err != nil {
		return &storage.StorageError{Op: "append_messages", Err: err}
	}

	var newest int64
	for i, m := range msgs {
		ms := msOf(m.CreatedAt)
		if ms > newest {
			newest = ms
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, seq, role, content, created_at_ms)
			 VALUES (?, ?, ?, ?, ?)`,
			sessionID, base+i+1, m.Role, m.Content, ms)
		if err != nil {
			return &storage.StorageError{Op: "append_messages", Err: err}
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at_ms = MAX(updated_at_ms, ?) WHERE id = ?`, newest, sessionID)
	if err != nil {
		return &storage.StorageError{Op: "append_messages", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "append_messages", Err: err}
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, lastN int) ([]memory.SessionMessage, error) {
	q := `SELECT session_id, seq, role, content, created_at_ms
		 FROM session_messages WHERE session_id = ? ORDER BY seq ASC`
	args := []any{sessionID}
	if lastN > 0 {
		// Take the tail by seq, then restore ascending order.
		q = `SELECT session_id, seq, role, content, created_at_ms FROM (
				SELECT session_id, seq, role, content, created_at_ms
				FROM session_messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
			) ORDER BY seq ASC`
		args = append(args, lastN)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_messages", Err: err}
	}
	defer rows.Close()

	var out []memory.SessionMessage
	for rows.Next() {
		var m memory.SessionMessage
		var ms int64
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.Role, &m.Content, &ms); err != nil {
			return nil, &storage.StorageError{Op: "list_messages", Err: err}
		}
		m.CreatedAt = timeOf(ms)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, &storage.StorageError{Op: "count_messages", Err: err}
	}
	return n, nil
}

const spotColumns = `id, session_id, user_id, memory_type, key, content, metadata,
	confidence, importance, status, extracted_at_ms, reviewed_at_ms, applied_at_ms`

func scanSpot(row rowScanner) (memory.Spot, error) {
	var spot memory.Spot
	var meta string
	var extracted int64
	var reviewed, applied sql.NullInt64
	err := row.Scan(&spot.ID, &spot.SessionID, &spot.UserID, &spot.Type, &spot.Key,
		&spot.Content, &meta, &spot.Confidence, &spot.Importance, &spot.Status,
		&extracted, &reviewed, &applied)
	if err != nil {
		return spot, err
	}
	spot.Metadata = decodeMeta(meta)
	spot.ExtractedAt = timeOf(extracted)
	spot.ReviewedAt = timeOrNil(reviewed)
	spot.AppliedAt = timeOrNil(applied)
	return spot, nil
}

func (s *Store) GetSpot(ctx context.Context, id string) (*memory.Spot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+spotColumns+` FROM memory_spots WHERE id = ?`, id)

	spot, err := scanSpot(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{Kind: "spot", Key: id}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "get_spot", Err: err}
	}
	return &spot, nil
}

func (s *Store) FindSpot(ctx context.Context, sessionID string, t memory.Type, key string) (*memory.Spot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+spotColumns+` FROM memory_spots
		 WHERE session_id = ? AND memory_type = ? AND key = ?`, sessionID, string(t), key)

	spot, err := scanSpot(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{Kind: "spot", Key: key}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "find_spot", Err: err}
	}
	return &spot, nil
}

func (s *Store) ListSpots(ctx context.Context, f storage.SpotFilter) ([]memory.Spot, error) {
	q := `SELECT ` + spotColumns + ` FROM memory_spots`
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		conds = append(conds, "memory_type = ?")
		args = append(args, string(f.Type))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.MinConfidence > 0 {
		conds = append(conds, "confidence >= ?")
		args = append(args, f.MinConfidence)
	}
	if f.MinImportance > 0 {
		conds = append(conds, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY extracted_at_ms DESC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &storage.StorageError{Op: "list_spots", Err: err}
	}
	defer rows.Close()

	var out []memory.Spot
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, &storage.StorageError{Op: "list_spots", Err: err}
		}
		out = append(out, spot)
	}
	return out, rows.Err()
}

func (s *Store) WriteSpots(ctx context.Context, inserts, updates []memory.Spot) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.StorageError{Op: "write_spots", Err: err}
	}
	defer tx.Rollback()

	for _, spot := range inserts {
		// Repeated extraction of the same candidate overwrites the payload
		// in place; the original row keeps its ID and status.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_spots (`+spotColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, memory_type, key) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				confidence = excluded.confidence,
				importance = excluded.importance,
				extracted_at_ms = excluded.extracted_at_ms`,
			spot.ID, spot.SessionID, spot.UserID, string(spot.Type), spot.Key,
			spot.Content, encodeMeta(spot.Metadata), spot.Confidence, spot.Importance,
			string(spot.Status), msOf(spot.ExtractedAt), msOrNil(spot.ReviewedAt), msOrNil(spot.AppliedAt))
		if err != nil {
			return &storage.StorageError{Op: "write_spots", Err: err}
		}
	}

	for _, spot := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE memory_spots SET
				session_id = ?, user_id = ?, memory_type = ?, key = ?, content = ?,
				metadata = ?, confidence = ?, importance = ?, status = ?,
				extracted_at_ms = ?, reviewed_at_ms = ?, applied_at_ms = ?
			 WHERE id = ?`,
			spot.SessionID, spot.UserID, string(spot.Type), spot.Key, spot.Content,
			encodeMeta(spot.Metadata), spot.Confidence, spot.Importance, string(spot.Status),
			msOf(spot.ExtractedAt), msOrNil(spot.ReviewedAt), msOrNil(spot.AppliedAt), spot.ID)
		if err != nil {
			return &storage.StorageError{Op: "write_spots", Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return &storage.StorageError{Op: "write_spots", Err: err}
		}
		if n == 0 {
			return storage.NotFoundError{Kind: "spot", Key: spot.ID}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "write_spots", Err: err}
	}
	return nil
}

func (s *Store) UpdateSpotStatus(ctx context.Context, id string, to memory.Status, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.StorageError{Op: "update_spot_status", Err: err}
	}
	defer tx.Rollback()

	if err := updateSpotStatusTx(ctx, tx, id, to, at); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "update_spot_status", Err: err}
	}
	return nil
}

func updateSpotStatusTx(ctx context.Context, tx *sql.Tx, id string, to memory.Status, at time.Time) error {
	var from memory.Status
	err := tx.QueryRowContext(ctx, `SELECT status FROM memory_spots WHERE id = ?`, id).Scan(&from)
	if err == sql.ErrNoRows {
		return storage.NotFoundError{Kind: "spot", Key: id}
	}
	if err != nil {
		return &storage.StorageError{Op: "update_spot_status", Err: err}
	}
	if !from.CanTransition(to) {
		return &storage.TransitionError{SpotID: id, From: from, To: to}
	}

	q := `UPDATE memory_spots SET status = ? WHERE id = ?`
	args := []any{string(to), id}
	switch to {
	case memory.StatusReviewed:
		q = `UPDATE memory_spots SET status = ?, reviewed_at_ms = ? WHERE id = ?`
		args = []any{string(to), msOf(at), id}
	case memory.StatusApplied:
		q = `UPDATE memory_spots SET status = ?, applied_at_ms = ? WHERE id = ?`
		args = []any{string(to), msOf(at), id}
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return &storage.StorageError{Op: "update_spot_status", Err: err}
	}
	return nil
}

func (s *Store) ApplySpot(ctx context.Context, app storage.SpotApplication) error {
	if err := validateApplication(app); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.StorageError{Op: "apply_spot", Err: err}
	}
	defer tx.Rollback()

	if err := updateSpotStatusTx(ctx, tx, app.SpotID, memory.StatusApplied, app.AppliedAt); err != nil {
		return err
	}

	switch {
	case app.Fact != nil:
		err = upsertFactTx(ctx, tx, *app.Fact)
	case app.Preference != nil:
		err = upsertIdentityTx(ctx, tx, *app.Preference)
	case app.Self != nil:
		err = upsertSelfTx(ctx, tx, *app.Self)
	case app.Capability != nil:
		err = upsertCapabilityTx(ctx, tx, *app.Capability)
	}
	if err != nil {
		return &storage.StorageError{Op: "apply_spot", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "apply_spot", Err: err}
	}
	return nil
}

func validateApplication(app storage.SpotApplication) error {
	n := 0
	if app.Fact != nil {
		n++
	}
	if app.Preference != nil {
		n++
	}
	if app.Self != nil {
		n++
	}
	if app.Capability != nil {
		n++
	}
	if n != 1 {
		return &storage.StorageError{Op: "apply_spot", Err: fmt.Errorf("exactly one payload required, got %d", n)}
	}
	return nil
}

func (s *Store) LatestSpotTime(ctx context.Context, sessionID string) (*time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(extracted_at_ms) FROM memory_spots WHERE session_id = ?`, sessionID).Scan(&ms)
	if err != nil {
		return nil, &storage.StorageError{Op: "latest_spot_time", Err: err}
	}
	return timeOrNil(ms), nil
}

func (s *Store) SessionFinalized(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_spots WHERE session_id = ? AND status != ?`,
		sessionID, string(memory.StatusExtracted)).Scan(&n)
	if err != nil {
		return false, &storage.StorageError{Op: "session_finalized", Err: err}
	}
	return n > 0, nil
}
