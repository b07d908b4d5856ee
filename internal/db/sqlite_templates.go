package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/services"
)

const templateColumns = `id, owner_id, topic_id, title, description, is_public, allowed_users, tags, slots,
	question_order, is_quiz, show_score_immediately, scoring_criteria, version, created_at, updated_at`

// scanTemplate leaves Order empty and fills StoredOrder; the service heals it on load.
func (s *SQLiteStore) scanTemplate(row scanner) (*services.Template, error) {
	var (
		t                           services.Template
		public, quiz, showNow       int
		allowed, tags, slots, order string
		created, updated            string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.TopicID, &t.Title, &t.Description, &public, &allowed, &tags, &slots,
		&order, &quiz, &showNow, &t.ScoringCriteria, &t.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.IsPublic, t.IsQuiz, t.ShowScoreImmediately = public != 0, quiz != 0, showNow != 0
	t.CreatedAt, t.UpdatedAt = parseTime(created), parseTime(updated)
	if err := json.Unmarshal([]byte(slots), &t.Slots); err != nil {
		return nil, fmt.Errorf("decode slots of %s: %w", t.ID, err)
	}
	s.decodeList(t.ID, "allowed_users", allowed, &t.AllowedUsers)
	s.decodeList(t.ID, "tags", tags, &t.Tags)
	s.decodeList(t.ID, "question_order", order, &t.StoredOrder)
	if t.StoredOrder == nil {
		t.StoredOrder = []string{}
	}
	return &t, nil
}

// decodeList tolerates corrupt list columns: the row still loads with an empty list.
func (s *SQLiteStore) decodeList(id, column, raw string, dst *[]string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.log.Warn("decode list column", zap.String("template_id", id), zap.String("column", column), zap.Error(err))
		*dst = nil
	}
}

type templateRow struct {
	allowed, tags, slots, order string
}

func encodeTemplate(t *services.Template) (templateRow, error) {
	var (
		r   templateRow
		err error
	)
	allowed := t.AllowedUsers
	if allowed == nil {
		allowed = []string{}
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	if r.allowed, err = encodeJSON(allowed); err != nil {
		return r, err
	}
	if r.tags, err = encodeJSON(tags); err != nil {
		return r, err
	}
	if r.slots, err = encodeJSON(t.Slots); err != nil {
		return r, err
	}
	if r.order, err = encodeJSON(services.OrderStrings(t.Order)); err != nil {
		return r, err
	}
	return r, nil
}

func (s *SQLiteStore) InsertTemplate(ctx context.Context, t *services.Template) error {
	r, err := encodeTemplate(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.TopicID, t.Title, t.Description, boolToInt(t.IsPublic), r.allowed, r.tags, r.slots,
		r.order, boolToInt(t.IsQuiz), boolToInt(t.ShowScoreImmediately), t.ScoringCriteria, t.Version,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*services.Template, error) {
	t, err := s.scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// UpdateTemplate is a single conditional statement; zero affected rows means another writer
// got there first (or the row is gone).
func (s *SQLiteStore) UpdateTemplate(ctx context.Context, t *services.Template, expectedVersion int) error {
	r, err := encodeTemplate(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET
		owner_id = ?, topic_id = ?, title = ?, description = ?, is_public = ?, allowed_users = ?, tags = ?,
		slots = ?, question_order = ?, is_quiz = ?, show_score_immediately = ?, scoring_criteria = ?,
		version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		t.OwnerID, t.TopicID, t.Title, t.Description, boolToInt(t.IsPublic), r.allowed, r.tags,
		r.slots, r.order, boolToInt(t.IsQuiz), boolToInt(t.ShowScoreImmediately), t.ScoringCriteria,
		t.Version, formatTime(t.UpdatedAt),
		t.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrVersionMismatch
	}
	return nil
}

// DeleteTemplate removes the template together with its responses, likes and comments.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	for _, stmt := range []string{
		`DELETE FROM responses WHERE template_id = ?`,
		`DELETE FROM likes WHERE template_id = ?`,
		`DELETE FROM comments WHERE template_id = ?`,
		`DELETE FROM templates WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, f services.TemplateFilter) ([]*services.Template, error) {
	var (
		where []string
		args  []any
	)
	if f.PublicOnly {
		where = append(where, `is_public = 1`)
	}
	if f.OwnerID != "" {
		where = append(where, `owner_id = ?`)
		args = append(args, f.OwnerID)
	}
	if f.TopicID != "" {
		where = append(where, `topic_id = ?`)
		args = append(args, f.TopicID)
	}
	if f.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(templates.tags) WHERE json_each.value = ?)`)
		args = append(args, f.Tag)
	}
	q := `SELECT ` + templateColumns + ` FROM templates`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	if f.Sort == services.SortPopular {
		q += ` ORDER BY (SELECT COUNT(*) FROM responses r WHERE r.template_id = templates.id) DESC, created_at DESC, id`
	} else {
		q += ` ORDER BY created_at DESC, id`
	}
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Template
	for rows.Next() {
		t, err := s.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- responses ---

const responseColumns = `id, template_id, submitter_id, answers, score, max_score, score_viewed, version,
	submitted_at, updated_at`

func scanResponse(row scanner) (*services.Response, error) {
	var (
		r                  services.Response
		answers            string
		score, max         sql.NullInt64
		viewed             int
		submitted, updated string
	)
	if err := row.Scan(&r.ID, &r.TemplateID, &r.SubmitterID, &answers, &score, &max, &viewed, &r.Version,
		&submitted, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
	}
	r.Score, r.MaxScore = intPtr(score), intPtr(max)
	r.ScoreViewed = viewed != 0
	r.SubmittedAt, r.UpdatedAt = parseTime(submitted), parseTime(updated)
	return &r, nil
}

func (s *SQLiteStore) InsertResponse(ctx context.Context, r *services.Response) error {
	answers, err := encodeJSON(r.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO responses (`+responseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TemplateID, r.SubmitterID, answers, nullInt(r.Score), nullInt(r.MaxScore), boolToInt(r.ScoreViewed),
		r.Version, formatTime(r.SubmittedAt), formatTime(r.UpdatedAt))
	return err
}

func (s *SQLiteStore) GetResponse(ctx context.Context, id string) (*services.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) UpdateResponse(ctx context.Context, r *services.Response, expectedVersion int) error {
	answers, err := encodeJSON(r.Answers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE responses SET answers = ?, score = ?, max_score = ?, score_viewed = ?,
		version = ?, updated_at = ? WHERE id = ? AND version = ?`,
		answers, nullInt(r.Score), nullInt(r.MaxScore), boolToInt(r.ScoreViewed), r.Version, formatTime(r.UpdatedAt),
		r.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrVersionMismatch
	}
	return nil
}

func (s *SQLiteStore) listResponses(ctx context.Context, column, value string) ([]*services.Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+responseColumns+` FROM responses WHERE `+column+` = ? ORDER BY submitted_at, id`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListResponsesByTemplate(ctx context.Context, templateID string) ([]*services.Response, error) {
	return s.listResponses(ctx, "template_id", templateID)
}

func (s *SQLiteStore) ListResponsesBySubmitter(ctx context.Context, userID string) ([]*services.Response, error) {
	return s.listResponses(ctx, "submitter_id", userID)
}

// --- likes and comments ---

func (s *SQLiteStore) SetLike(ctx context.Context, templateID, userID string, liked bool) error {
	var err error
	if liked {
		_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO likes (template_id, user_id) VALUES (?, ?)`, templateID, userID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM likes WHERE template_id = ? AND user_id = ?`, templateID, userID)
	}
	return err
}

func (s *SQLiteStore) CountLikes(ctx context.Context, templateID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE template_id = ?`, templateID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) HasLiked(ctx context.Context, templateID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE template_id = ? AND user_id = ?`, templateID, userID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) InsertComment(ctx context.Context, c *services.Comment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO comments (id, template_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.TemplateID, c.AuthorID, c.Body, formatTime(c.CreatedAt))
	return err
}

func (s *SQLiteStore) ListComments(ctx context.Context, templateID string) ([]*services.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, template_id, author_id, body, created_at FROM comments
		WHERE template_id = ? ORDER BY created_at, id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Comment
	for rows.Next() {
		var (
			c  services.Comment
			ts string
		)
		if err := rows.Scan(&c.ID, &c.TemplateID, &c.AuthorID, &c.Body, &ts); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(ts)
		out = append(out, &c)
	}
	return out, rows.Err()
}
