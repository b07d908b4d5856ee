package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/services"
)

// SQLiteStore implements every services store interface on database/sql.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens a SQLite database at path. ":memory:" databases are pinned to one connection so
// every query sees the same data.
func Open(path string) (*sql.DB, error) {
	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB, log *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if log == nil {
		log = zap.NewNop()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, log: log.Named("sqlite")}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) logErr(op string, err error) {
	if err != nil {
		s.log.Error("sqlite store", zap.String("op", op), zap.Error(err))
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

// --- users ---

const userColumns = `id, email, name, pass_hash, is_admin, blocked, created_at`

func scanUser(row scanner) (*services.User, error) {
	var (
		u              services.User
		admin, blocked int
		created        string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PassHash, &admin, &blocked, &created); err != nil {
		return nil, err
	}
	u.IsAdmin, u.Blocked = admin != 0, blocked != 0
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLiteStore) queryUser(ctx context.Context, where string, arg any) (*services.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	return s.queryUser(ctx, `email = ?`, email)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	return s.queryUser(ctx, `id = ?`, id)
}

// CreateUser decides the admin flag inside the insert so concurrent first sign-ups cannot
// both become admin.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *services.User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		SELECT ?, ?, ?, ?, NOT EXISTS (SELECT 1 FROM users), ?, ?`,
		u.ID, u.Email, u.Name, u.PassHash, boolToInt(u.Blocked), formatTime(u.CreatedAt))
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return services.ErrEmailTaken
		}
		return err
	}
	var admin int
	if err := s.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = ?`, u.ID).Scan(&admin); err != nil {
		return err
	}
	u.IsAdmin = admin != 0
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*services.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetUserFlags(ctx context.Context, id string, isAdmin, blocked bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ?, blocked = ? WHERE id = ?`,
		boolToInt(isAdmin), boolToInt(blocked), id)
	return err
}

// --- topics ---

func (s *SQLiteStore) ListTopics(ctx context.Context) ([]services.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM topics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.Topic
	for rows.Next() {
		var t services.Topic
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryTopic(ctx context.Context, where string, arg any) (*services.Topic, error) {
	var t services.Topic
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM topics WHERE `+where, arg).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (*services.Topic, error) {
	return s.queryTopic(ctx, `id = ?`, id)
}

// FindTopicByName matches case-insensitively; the column is declared COLLATE NOCASE.
func (s *SQLiteStore) FindTopicByName(ctx context.Context, name string) (*services.Topic, error) {
	return s.queryTopic(ctx, `name = ?`, name)
}

func (s *SQLiteStore) InsertTopic(ctx context.Context, t *services.Topic) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO topics (id, name) VALUES (?, ?)`, t.ID, t.Name)
	return err
}

// --- audit ---

// AddAudit never fails the caller; write errors are logged.
func (s *SQLiteStore) AddAudit(ctx context.Context, e services.AuditEntry) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(ts), e.Actor, e.Action, e.Target, e.Note)
	s.logErr("AddAudit", err)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]services.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var (
			e  services.AuditEntry
			ts string
		)
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, err
		}
		e.Time = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
