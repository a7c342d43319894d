package store

import (
	"time"

	"gorm.io/datatypes"

	"cherrybook/pkg/domain"
)

// BookModel is the persisted catalog row. Position preserves seed order.
type BookModel struct {
	ID          string                      `gorm:"primaryKey"`
	Position    int                         `gorm:"not null;index"`
	Title       string                      `gorm:"not null"`
	Author      string                      `gorm:"not null"`
	Price       float64                     `gorm:"not null"`
	Rating      float64                     `gorm:"not null;default:0"`
	CoverURL    string                      `gorm:"column:cover_url"`
	Description string                      `gorm:"type:text"`
	Tags        datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	CreatedAt   time.Time                   `gorm:"not null"`
	UpdatedAt   time.Time                   `gorm:"not null"`
}

// TableName pins the table name independent of the struct name.
func (BookModel) TableName() string {
	return "catalog_books"
}

func bookToModel(b domain.Book, position int, now time.Time) BookModel {
	tags := datatypes.JSONSlice[string]{}
	if len(b.Tags) > 0 {
		tags = append(tags, b.Tags...)
	}
	return BookModel{
		ID:          b.ID,
		Position:    position,
		Title:       b.Title,
		Author:      b.Author,
		Price:       b.Price,
		Rating:      b.Rating,
		CoverURL:    b.CoverURL,
		Description: b.Description,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func bookFromModel(m BookModel) domain.Book {
	tags := make([]string, 0, len(m.Tags))
	tags = append(tags, m.Tags...)
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Price:       m.Price,
		Rating:      m.Rating,
		CoverURL:    m.CoverURL,
		Description: m.Description,
		Tags:        tags,
	}
}

func seedModels(books []domain.Book, now time.Time) []BookModel {
	out := make([]BookModel, 0, len(books))
	for i, b := range books {
		out = append(out, bookToModel(b, i, now))
	}
	return out
}
