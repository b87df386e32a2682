package storage

import (
	"context"
	"net/url"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketchbook/internal/domain"
)

// newTestMongo connects to the server in SKETCHBOOK_TEST_MONGO_URI and
// gives each test its own database, dropped on cleanup.
func newTestMongo(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("SKETCHBOOK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SKETCHBOOK_TEST_MONGO_URI not set")
	}
	u, err := url.Parse(uri)
	require.NoError(t, err)
	u.Path = "/sketchbook_test_" + uuid.NewString()[:8]

	ctx := context.Background()
	s, err := OpenMongo(ctx, u.String())
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})
	return s
}

func seedMongoPages(t *testing.T, s *MongoStore, sectionID string, titles ...string) []domain.Page {
	t.Helper()
	var pages []domain.Page
	for i, title := range titles {
		p := &domain.Page{ID: uuid.NewString(), SectionID: sectionID, Title: title, Order: i}
		require.NoError(t, s.CreatePage(context.Background(), p))
		pages = append(pages, *p)
	}
	return pages
}

func TestMongoDatabaseName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/notes", "notes"},
		{"mongodb://user:pw@localhost/notes?authSource=admin", "notes"},
		{"mongodb://localhost:27017", defaultMongoDatabase},
		{"mongodb://localhost:27017/", defaultMongoDatabase},
		{"::not a uri", defaultMongoDatabase},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mongoDatabaseName(tt.uri), tt.uri)
	}
}

func TestMongo_TenantsAndSections(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTenant(ctx, &domain.Tenant{ID: "t1", Name: "Personal"}))
	require.NoError(t, s.CreateSection(ctx, &domain.Section{ID: "s2", TenantID: "t1", Name: "Later", Order: 1}))
	require.NoError(t, s.CreateSection(ctx, &domain.Section{ID: "s1", TenantID: "t1", Name: "First", Order: 0}))

	tenants, err := s.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)

	sections, err := s.ListSections(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "s1", sections[0].ID)
}

func TestMongo_SavePageContent_LastWriteWinsBySeq(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()
	page := seedMongoPages(t, s, "sec", "Sketch")[0]

	require.NoError(t, s.SavePageContent(ctx, page.ID, "newer", 20))
	assert.ErrorIs(t, s.SavePageContent(ctx, page.ID, "older", 10), domain.ErrStaleWrite)
	assert.ErrorIs(t, s.SavePageContent(ctx, page.ID, "same", 20), domain.ErrStaleWrite)

	got, err := s.LoadPage(ctx, page.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Content)
	assert.Equal(t, "newer", *got.Content)
	assert.Equal(t, int64(20), got.ContentSeq)
}

func TestMongo_MissingPage(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()

	_, err := s.LoadPage(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
	assert.ErrorIs(t, s.SavePageContent(ctx, "nope", "x", 1), domain.ErrPageNotFound,
		"a missing page is not reported as a stale write")
	assert.ErrorIs(t, s.SavePageTitle(ctx, "nope", "x"), domain.ErrPageNotFound)
	assert.ErrorIs(t, s.DeletePage(ctx, "nope"), domain.ErrPageNotFound)
}

func TestMongo_ListPages_OrderedWithoutContent(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()
	pages := seedMongoPages(t, s, "sec", "A", "B")
	seedMongoPages(t, s, "other", "X")
	require.NoError(t, s.SavePageContent(ctx, pages[0].ID, `{"shapes":[]}`, 1))

	got, err := s.ListPages(ctx, "sec")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Title)
	assert.Nil(t, got[0].Content)
}

func TestMongo_ReorderPages_AllOrNothing(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()
	pages := seedMongoPages(t, s, "sec", "A", "B", "C")
	stranger := seedMongoPages(t, s, "other", "X")[0]

	err := s.ReorderPages(ctx, "sec", []string{pages[2].ID, stranger.ID, pages[0].ID})
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
	got, err := s.ListPages(ctx, "sec")
	require.NoError(t, err)
	assert.Equal(t, "A", got[0].Title, "rejected reorder leaves the order untouched")

	require.NoError(t, s.ReorderPages(ctx, "sec", []string{pages[2].ID, pages[0].ID, pages[1].ID}))
	got, err = s.ListPages(ctx, "sec")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, []string{got[0].Title, got[1].Title, got[2].Title})
}

func TestMongo_DeletePage(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()
	page := seedMongoPages(t, s, "sec", "Doomed")[0]

	require.NoError(t, s.DeletePage(ctx, page.ID))
	_, err := s.LoadPage(ctx, page.ID)
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
}
