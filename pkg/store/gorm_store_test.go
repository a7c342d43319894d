package store

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"cherrybook/pkg/domain"
)

// testDSN returns a DSN scoped to a throwaway schema, or skips when no
// Postgres is configured.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	admin, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open admin db: %v", err)
	}
	schema := "cherrybook_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return withSearchPath(dsn, schema)
}

func withSearchPath(dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func TestGormStoreKeepsSeedOrder(t *testing.T) {
	dsn := testDSN(t)
	seed := []domain.Book{
		{ID: "z", Title: "Zed", Author: "A", Price: 9.5, Tags: []string{"Fantasy"}},
		{ID: "a", Title: "Ay", Author: "B", Price: 12},
		{ID: "m", Title: "Em", Author: "C", Price: 7.25, Rating: 4.2},
	}
	s, err := NewGormStore(dsn, seed)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	books, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	if strings.Join(ids, ",") != "z,a,m" {
		t.Fatalf("expected seed order z,a,m, got %v", ids)
	}
	if len(books[0].Tags) != 1 || books[0].Tags[0] != "Fantasy" {
		t.Fatalf("tags not round-tripped: %+v", books[0])
	}

	b, ok, err := s.Get(ctx, "m")
	if err != nil || !ok || b.Rating != 4.2 {
		t.Fatalf("get m: %+v ok=%v err=%v", b, ok, err)
	}
	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing book, ok=%v err=%v", ok, err)
	}
}

func TestGormStoreSeedsOnlyEmptyTable(t *testing.T) {
	dsn := testDSN(t)
	first, err := NewGormStore(dsn, []domain.Book{{ID: "1", Title: "One", Author: "A", Price: 1}})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = first.Close()

	second, err := NewGormStore(dsn, []domain.Book{{ID: "2", Title: "Two", Author: "B", Price: 2}})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	books, err := second.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 || books[0].ID != "1" {
		t.Fatalf("expected original seed to survive reopen, got %+v", books)
	}
}
