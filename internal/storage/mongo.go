package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"sketchbook/internal/domain"
)

const defaultMongoDatabase = "sketchbook"

// MongoStore implements domain.PageStore and domain.SectionStore on MongoDB.
// Revision history is not kept on this backend.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri. The database name is taken from the URI path.
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	dbName := mongoDatabaseName(uri)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.pages().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "section_id", Value: 1}, {Key: "sort_order", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create page index: %w", err)
	}
	_, err = s.sections().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create section index: %w", err)
	}
	return nil
}

func (s *MongoStore) pages() *mongo.Collection    { return s.db.Collection("pages") }
func (s *MongoStore) sections() *mongo.Collection { return s.db.Collection("sections") }
func (s *MongoStore) tenants() *mongo.Collection  { return s.db.Collection("tenants") }

func (s *MongoStore) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if _, err := s.tenants().InsertOne(ctx, t); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	cur, err := s.tenants().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	var tenants []domain.Tenant
	if err := cur.All(ctx, &tenants); err != nil {
		return nil, fmt.Errorf("decode tenants: %w", err)
	}
	return tenants, nil
}

func (s *MongoStore) CreateSection(ctx context.Context, sec *domain.Section) error {
	now := time.Now().UTC()
	sec.CreatedAt, sec.UpdatedAt = now, now
	if _, err := s.sections().InsertOne(ctx, sec); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

func (s *MongoStore) ListSections(ctx context.Context, tenantID string) ([]domain.Section, error) {
	cur, err := s.sections().Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	var sections []domain.Section
	if err := cur.All(ctx, &sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return sections, nil
}

func (s *MongoStore) CreatePage(ctx context.Context, p *domain.Page) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if _, err := s.pages().InsertOne(ctx, p); err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (s *MongoStore) LoadPage(ctx context.Context, id string) (*domain.Page, error) {
	var p domain.Page
	err := s.pages().FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("load page %s: %w", id, domain.ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) ListPages(ctx context.Context, sectionID string) ([]domain.Page, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "created_at", Value: 1}}).
		SetProjection(bson.M{"content": 0})
	cur, err := s.pages().Find(ctx, bson.M{"section_id": sectionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var pages []domain.Page
	if err := cur.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return pages, nil
}

func (s *MongoStore) SavePageContent(ctx context.Context, id, content string, seq int64) error {
	res, err := s.pages().UpdateOne(ctx,
		bson.M{"_id": id, "content_seq": bson.M{"$lt": seq}},
		bson.M{"$set": bson.M{"content": content, "content_seq": seq, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("save page content: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("save page content %s seq %d: %w", id, seq, domain.ErrStaleWrite)
}

func (s *MongoStore) SavePageTitle(ctx context.Context, id, title string) error {
	res, err := s.pages().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"title": title, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("save page title: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("save page title %s: %w", id, domain.ErrPageNotFound)
	}
	return nil
}

// ReorderPages verifies every id belongs to the section before writing,
// since a bulk write is not atomic without a replica-set transaction.
func (s *MongoStore) ReorderPages(ctx context.Context, sectionID string, pageIDs []string) error {
	n, err := s.pages().CountDocuments(ctx, bson.M{"section_id": sectionID, "_id": bson.M{"$in": pageIDs}})
	if err != nil {
		return fmt.Errorf("reorder pages: %w", err)
	}
	if int(n) != len(pageIDs) {
		return fmt.Errorf("reorder pages in section %s: %w", sectionID, domain.ErrPageNotFound)
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(pageIDs))
	for i, id := range pageIDs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id, "section_id": sectionID}).
			SetUpdate(bson.M{"$set": bson.M{"sort_order": i, "updated_at": now}}))
	}
	if _, err := s.pages().BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("reorder pages: %w", err)
	}
	return nil
}

func (s *MongoStore) DeletePage(ctx context.Context, id string) error {
	res, err := s.pages().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete page %s: %w", id, domain.ErrPageNotFound)
	}
	return nil
}

func (s *MongoStore) exists(ctx context.Context, id string) error {
	n, err := s.pages().CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count page: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("page %s: %w", id, domain.ErrPageNotFound)
	}
	return nil
}
