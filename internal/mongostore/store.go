// Package mongostore is the MongoDB storage backend. It implements the same store interfaces
// as the SQLite backend.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/services"
)

var defaultTopics = []services.Topic{
	{ID: "education", Name: "Education"},
	{ID: "quiz", Name: "Quiz"},
	{ID: "other", Name: "Other"},
}

type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	templates *mongo.Collection
	responses *mongo.Collection
	users     *mongo.Collection
	topics    *mongo.Collection
	likes     *mongo.Collection
	comments  *mongo.Collection
	audit     *mongo.Collection
	meta      *mongo.Collection
	log       *zap.Logger
}

// Connect dials uri and pings the server before returning.
func Connect(ctx context.Context, uri, database string, log *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database, log), nil
}

func New(client *mongo.Client, database string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	db := client.Database(database)
	return &Store{
		client:    client,
		db:        db,
		templates: db.Collection("templates"),
		responses: db.Collection("responses"),
		users:     db.Collection("users"),
		topics:    db.Collection("topics"),
		likes:     db.Collection("likes"),
		comments:  db.Collection("comments"),
		audit:     db.Collection("audit_log"),
		meta:      db.Collection("meta"),
		log:       log.Named("mongo"),
	}
}

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Migrate creates indexes and seeds the default topics. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users:  {{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		s.topics: {{Keys: bson.D{{Key: "name_lower", Value: 1}}, Options: options.Index().SetUnique(true)}},
		s.templates: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
			{Keys: bson.D{{Key: "is_public", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
		},
		s.responses: {
			{Keys: bson.D{{Key: "template_id", Value: 1}}},
			{Keys: bson.D{{Key: "submitter_id", Value: 1}}},
		},
		s.likes:    {{Keys: bson.D{{Key: "template_id", Value: 1}}}},
		s.comments: {{Keys: bson.D{{Key: "template_id", Value: 1}, {Key: "created_at", Value: 1}}}},
		s.audit:    {{Keys: bson.D{{Key: "time", Value: -1}}}},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	// Databases that already hold users must not crown the next sign-up.
	if n, err := s.users.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1)); err != nil {
		return fmt.Errorf("count users: %w", err)
	} else if n > 0 {
		_, err := s.meta.UpdateOne(ctx, bson.M{"_id": adminBootstrapID},
			bson.M{"$setOnInsert": bson.M{"user_id": "", "time": time.Now().UTC()}}, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("mark admin bootstrap: %w", err)
		}
	}
	for _, t := range defaultTopics {
		doc := topicDoc{ID: t.ID, Name: t.Name, NameLower: strings.ToLower(t.Name)}
		_, err := s.topics.UpdateOne(ctx, bson.M{"_id": t.ID}, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("seed topic %s: %w", t.ID, err)
		}
	}
	return nil
}

// --- templates ---

func (s *Store) InsertTemplate(ctx context.Context, t *services.Template) error {
	_, err := s.templates.InsertOne(ctx, toTemplateDoc(t))
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*services.Template, error) {
	var d templateDoc
	err := s.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.template(), nil
}

// UpdateTemplate matches on both id and version, so the check and the write are one operation.
func (s *Store) UpdateTemplate(ctx context.Context, t *services.Template, expectedVersion int) error {
	d := toTemplateDoc(t)
	set := bson.M{
		"owner_id":               d.OwnerID,
		"topic_id":               d.TopicID,
		"title":                  d.Title,
		"description":            d.Description,
		"is_public":              d.IsPublic,
		"allowed_users":          d.AllowedUsers,
		"tags":                   d.Tags,
		"slots":                  d.Slots,
		"question_order":         d.Order,
		"is_quiz":                d.IsQuiz,
		"show_score_immediately": d.ShowScoreImmediately,
		"scoring_criteria":       d.ScoringCriteria,
		"version":                d.Version,
		"updated_at":             d.UpdatedAt,
	}
	res, err := s.templates.UpdateOne(ctx, bson.M{"_id": t.ID, "version": expectedVersion}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return services.ErrVersionMismatch
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	for _, coll := range []*mongo.Collection{s.responses, s.likes, s.comments} {
		if _, err := coll.DeleteMany(ctx, bson.M{"template_id": id}); err != nil {
			return fmt.Errorf("delete from %s: %w", coll.Name(), err)
		}
	}
	_, err := s.templates.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *Store) ListTemplates(ctx context.Context, f services.TemplateFilter) ([]*services.Template, error) {
	filter := bson.M{}
	if f.PublicOnly {
		filter["is_public"] = true
	}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.TopicID != "" {
		filter["topic_id"] = f.TopicID
	}
	if f.Tag != "" {
		filter["tags"] = f.Tag
	}
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	if f.Sort == services.SortPopular {
		sort = append(bson.D{{Key: "response_count", Value: -1}}, sort...)
	}
	opts := options.Find().SetSort(sort)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := s.templates.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []templateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*services.Template, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.template())
	}
	return out, nil
}

// --- responses ---

func (s *Store) InsertResponse(ctx context.Context, r *services.Response) error {
	if _, err := s.responses.InsertOne(ctx, toResponseDoc(r)); err != nil {
		return err
	}
	// response_count only drives the popular sort; it is not part of the template version.
	if _, err := s.templates.UpdateOne(ctx, bson.M{"_id": r.TemplateID}, bson.M{"$inc": bson.M{"response_count": 1}}); err != nil {
		s.log.Warn("increment response count", zap.String("template_id", r.TemplateID), zap.Error(err))
	}
	return nil
}

func (s *Store) GetResponse(ctx context.Context, id string) (*services.Response, error) {
	var d responseDoc
	err := s.responses.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.response()
}

func (s *Store) UpdateResponse(ctx context.Context, r *services.Response, expectedVersion int) error {
	d := toResponseDoc(r)
	set := bson.M{
		"answers":      d.Answers,
		"score":        d.Score,
		"max_score":    d.MaxScore,
		"score_viewed": d.ScoreViewed,
		"version":      d.Version,
		"updated_at":   d.UpdatedAt,
	}
	res, err := s.responses.UpdateOne(ctx, bson.M{"_id": r.ID, "version": expectedVersion}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return services.ErrVersionMismatch
	}
	return nil
}

func (s *Store) findResponses(ctx context.Context, filter bson.M) ([]*services.Response, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.responses.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []responseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*services.Response, 0, len(docs))
	for _, d := range docs {
		r, err := d.response()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ListResponsesByTemplate(ctx context.Context, templateID string) ([]*services.Response, error) {
	return s.findResponses(ctx, bson.M{"template_id": templateID})
}

func (s *Store) ListResponsesBySubmitter(ctx context.Context, userID string) ([]*services.Response, error) {
	return s.findResponses(ctx, bson.M{"submitter_id": userID})
}

// --- users ---

func (s *Store) findUser(ctx context.Context, filter bson.M) (*services.User, error) {
	var d userDoc
	err := s.users.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.user(), nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) GetUser(ctx context.Context, id string) (*services.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// adminBootstrapID keys the marker document whose successful insert crowns the first admin.
const adminBootstrapID = "admin_bootstrap"

// CreateUser inserts u, then claims the admin bootstrap marker. Only one insert of the marker
// can succeed, so exactly one account becomes the initial admin.
func (s *Store) CreateUser(ctx context.Context, u *services.User) error {
	_, err := s.users.InsertOne(ctx, userDoc{
		ID: u.ID, Email: u.Email, Name: u.Name, PassHash: u.PassHash,
		Blocked: u.Blocked, CreatedAt: u.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return services.ErrEmailTaken
	}
	if err != nil {
		return err
	}
	_, err = s.meta.InsertOne(ctx, bson.M{"_id": adminBootstrapID, "user_id": u.ID, "time": u.CreatedAt.UTC()})
	switch {
	case mongo.IsDuplicateKeyError(err):
		u.IsAdmin = false
		return nil
	case err != nil:
		return fmt.Errorf("claim admin bootstrap: %w", err)
	}
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{"is_admin": true}}); err != nil {
		return fmt.Errorf("promote first user: %w", err)
	}
	u.IsAdmin = true
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*services.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*services.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.user())
	}
	return out, nil
}

func (s *Store) SetUserFlags(ctx context.Context, id string, isAdmin, blocked bool) error {
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"is_admin": isAdmin, "blocked": blocked}})
	return err
}

// --- topics ---

func (s *Store) ListTopics(ctx context.Context) ([]services.Topic, error) {
	cur, err := s.topics.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []topicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]services.Topic, 0, len(docs))
	for _, d := range docs {
		out = append(out, services.Topic{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

func (s *Store) findTopic(ctx context.Context, filter bson.M) (*services.Topic, error) {
	var d topicDoc
	err := s.topics.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &services.Topic{ID: d.ID, Name: d.Name}, nil
}

func (s *Store) GetTopic(ctx context.Context, id string) (*services.Topic, error) {
	return s.findTopic(ctx, bson.M{"_id": id})
}

func (s *Store) FindTopicByName(ctx context.Context, name string) (*services.Topic, error) {
	return s.findTopic(ctx, bson.M{"name_lower": strings.ToLower(name)})
}

func (s *Store) InsertTopic(ctx context.Context, t *services.Topic) error {
	_, err := s.topics.InsertOne(ctx, topicDoc{ID: t.ID, Name: t.Name, NameLower: strings.ToLower(t.Name)})
	return err
}

// --- likes, comments, audit ---

func likeID(templateID, userID string) string { return templateID + ":" + userID }

func (s *Store) SetLike(ctx context.Context, templateID, userID string, liked bool) error {
	id := likeID(templateID, userID)
	if !liked {
		_, err := s.likes.DeleteOne(ctx, bson.M{"_id": id})
		return err
	}
	doc := bson.M{"_id": id, "template_id": templateID, "user_id": userID}
	_, err := s.likes.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	return err
}

func (s *Store) CountLikes(ctx context.Context, templateID string) (int, error) {
	n, err := s.likes.CountDocuments(ctx, bson.M{"template_id": templateID})
	return int(n), err
}

func (s *Store) HasLiked(ctx context.Context, templateID, userID string) (bool, error) {
	n, err := s.likes.CountDocuments(ctx, bson.M{"_id": likeID(templateID, userID)})
	return n > 0, err
}

func (s *Store) InsertComment(ctx context.Context, c *services.Comment) error {
	_, err := s.comments.InsertOne(ctx, commentDoc{
		ID: c.ID, TemplateID: c.TemplateID, AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt.UTC(),
	})
	return err
}

func (s *Store) ListComments(ctx context.Context, templateID string) ([]*services.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.comments.Find(ctx, bson.M{"template_id": templateID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*services.Comment, 0, len(docs))
	for _, d := range docs {
		out = append(out, &services.Comment{ID: d.ID, TemplateID: d.TemplateID, AuthorID: d.AuthorID, Body: d.Body, CreatedAt: d.CreatedAt.UTC()})
	}
	return out, nil
}

func (s *Store) AddAudit(ctx context.Context, e services.AuditEntry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if _, err := s.audit.InsertOne(ctx, auditDoc{Time: e.Time, Actor: e.Actor, Action: e.Action, Target: e.Target, Note: e.Note}); err != nil {
		s.log.Error("mongo store", zap.String("op", "AddAudit"), zap.Error(err))
	}
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]services.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.audit.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]services.AuditEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, services.AuditEntry{Time: d.Time.UTC(), Actor: d.Actor, Action: d.Action, Target: d.Target, Note: d.Note})
	}
	return out, nil
}
