package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cherrybook/pkg/domain"
)

// Catalog provides read access to the purchasable books.
type Catalog interface {
	List(ctx context.Context) ([]domain.Book, error)
	Get(ctx context.Context, id string) (domain.Book, bool, error)
}

// MemoryCatalog is an immutable in-process catalog.
// Reads hand out copies so the reference dataset cannot be mutated.
type MemoryCatalog struct {
	books []domain.Book
	index map[string]int
}

// NewMemoryCatalog builds a catalog from books, keeping their order.
func NewMemoryCatalog(books []domain.Book) (*MemoryCatalog, error) {
	c := &MemoryCatalog{
		books: make([]domain.Book, 0, len(books)),
		index: make(map[string]int, len(books)),
	}
	for _, b := range books {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: book id required (title %q)", b.Title)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate book id %q", id)
		}
		c.index[id] = len(c.books)
		c.books = append(c.books, b.Clone())
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *MemoryCatalog
)

// Default returns the process-wide seed catalog, built on first use.
func Default() *MemoryCatalog {
	defaultOnce.Do(func() {
		c, err := NewMemoryCatalog(seedBooks)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// List returns all books in seed order.
func (c *MemoryCatalog) List(_ context.Context) ([]domain.Book, error) {
	return cloneBooks(c.books), nil
}

// Get returns the book with the given id.
func (c *MemoryCatalog) Get(_ context.Context, id string) (domain.Book, bool, error) {
	i, ok := c.index[strings.TrimSpace(id)]
	if !ok {
		return domain.Book{}, false, nil
	}
	return c.books[i].Clone(), true, nil
}

// Len reports the number of books.
func (c *MemoryCatalog) Len() int {
	return len(c.books)
}

func cloneBooks(in []domain.Book) []domain.Book {
	out := make([]domain.Book, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}
