package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/miradorstack/mirador-rob/internal/models"
)

// Collection names.
const (
	templatesCollection   = "rob_templates"
	assessmentsCollection = "rob_assessments"
	auditCollection       = "rob_audit"
	settingsCollection    = "rob_settings"
)

// MongoStore persists records in MongoDB. Templates and assessments are wrapped
// in envelope documents keyed by their natural key so upserts never rewrite _id.
type MongoStore struct {
	client      *mongo.Client
	templates   *mongo.Collection
	assessments *mongo.Collection
	audit       *mongo.Collection
	settings    *mongo.Collection
	now         func() time.Time
}

type templateDoc struct {
	Key       string          `bson:"_id"`
	ProjectID string          `bson:"project_id"`
	ToolType  string          `bson:"tool_type"`
	Template  models.Template `bson:"template"`
}

type assessmentDoc struct {
	Key          string            `bson:"_id"`
	ProjectID    string            `bson:"project_id"`
	AssessmentID string            `bson:"assessment_id"`
	InsertedAt   int64             `bson:"inserted_at"`
	Assessment   models.Assessment `bson:"assessment"`
}

type auditDoc struct {
	Seq          int64             `bson:"seq"`
	ProjectID    string            `bson:"project_id"`
	AssessmentID string            `bson:"assessment_id"`
	Entry        models.AuditEntry `bson:"entry"`
}

// NewMongoStore connects to uri and ensures indexes on database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	store := NewMongoStoreFromClient(client, database)
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewMongoStoreFromClient wraps an already connected client.
func NewMongoStoreFromClient(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:      client,
		templates:   db.Collection(templatesCollection),
		assessments: db.Collection(assessmentsCollection),
		audit:       db.Collection(auditCollection),
		settings:    db.Collection(settingsCollection),
		now:         time.Now,
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.assessments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "assessment_id", Value: 1}}},
		{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "inserted_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create assessment indexes: %w", err)
	}
	_, err = s.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "assessment_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

func templateDocKey(projectID string, tool models.ToolType) string {
	return projectID + "|" + string(tool)
}

func assessmentDocKey(key AssessmentKey) string {
	return key.ProjectID + "|" + key.StudyID + "|" + key.TemplateID + "|" + key.ComparisonLabel
}

func (s *MongoStore) SaveTemplate(ctx context.Context, projectID string, tmpl *models.Template) error {
	doc := templateDoc{
		Key:       templateDocKey(projectID, tmpl.ToolType),
		ProjectID: projectID,
		ToolType:  string(tmpl.ToolType),
		Template:  *tmpl,
	}
	_, err := s.templates.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save template %s: %w", doc.Key, err)
	}
	return nil
}

func (s *MongoStore) GetTemplate(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, error) {
	var doc templateDoc
	if err := s.templates.FindOne(ctx, bson.M{"_id": templateDocKey(projectID, tool)}).Decode(&doc); err != nil {
		return nil, mongoNotFound(err)
	}
	return &doc.Template, nil
}

func (s *MongoStore) DeleteTemplates(ctx context.Context, projectID string, tool models.ToolType) error {
	if _, err := s.templates.DeleteOne(ctx, bson.M{"_id": templateDocKey(projectID, tool)}); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func (s *MongoStore) SaveAssessment(ctx context.Context, a *models.Assessment) error {
	key := assessmentDocKey(KeyOf(a))
	update := bson.M{
		"$set": bson.M{
			"project_id":    a.ProjectID,
			"assessment_id": a.ID,
			"assessment":    a,
		},
		"$setOnInsert": bson.M{"inserted_at": s.now().UnixNano()},
	}
	_, err := s.assessments.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save assessment %s: %w", a.ID, err)
	}
	return nil
}

func (s *MongoStore) GetAssessment(ctx context.Context, key AssessmentKey) (*models.Assessment, error) {
	return s.findAssessment(ctx, bson.M{"_id": assessmentDocKey(key)})
}

func (s *MongoStore) GetAssessmentByID(ctx context.Context, projectID, id string) (*models.Assessment, error) {
	return s.findAssessment(ctx, bson.M{"project_id": projectID, "assessment_id": id})
}

func (s *MongoStore) findAssessment(ctx context.Context, filter bson.M) (*models.Assessment, error) {
	var doc assessmentDoc
	if err := s.assessments.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mongoNotFound(err)
	}
	return &doc.Assessment, nil
}

func (s *MongoStore) ListAssessments(ctx context.Context, projectID string) ([]*models.Assessment, error) {
	cursor, err := s.assessments.Find(ctx, bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "inserted_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Assessment
	for cursor.Next(ctx) {
		var doc assessmentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode assessment: %w", err)
		}
		a := doc.Assessment
		out = append(out, &a)
	}
	return out, cursor.Err()
}

func (s *MongoStore) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	doc := auditDoc{Seq: s.now().UnixNano(), ProjectID: entry.ProjectID, AssessmentID: entry.AssessmentID, Entry: entry}
	if _, err := s.audit.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAudit(ctx context.Context, projectID, assessmentID string) ([]models.AuditEntry, error) {
	cursor, err := s.audit.Find(ctx, bson.M{"project_id": projectID, "assessment_id": assessmentID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.AuditEntry
	for cursor.Next(ctx) {
		var doc auditDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, doc.Entry)
	}
	return out, cursor.Err()
}

func (s *MongoStore) GetSettings(ctx context.Context, projectID string) (models.ProjectSettings, error) {
	var settings models.ProjectSettings
	if err := s.settings.FindOne(ctx, bson.M{"_id": projectID}).Decode(&settings); err != nil {
		return models.ProjectSettings{}, mongoNotFound(err)
	}
	return settings, nil
}

func (s *MongoStore) SaveSettings(ctx context.Context, settings models.ProjectSettings) error {
	_, err := s.settings.ReplaceOne(ctx, bson.M{"_id": settings.ProjectID}, settings, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save settings %s: %w", settings.ProjectID, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
