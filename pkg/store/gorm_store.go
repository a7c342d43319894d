package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"cherrybook/pkg/domain"
)

const migrateLockID int64 = 42817301

// GormStore serves the catalog from Postgres via GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens dsn, migrates the schema and seeds an empty table
// with seed.
func NewGormStore(dsn string, seed []domain.Book) (*GormStore, error) {
	gormLog := gormlogger.New(slogWriter{}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// The catalog is small and read-mostly.
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return newGormStore(db, seed)
}

// slogWriter sends GORM's slow-query and error lines to the default slog
// logger so they share the service's JSON format.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	slog.Warn("catalog.db", "detail", fmt.Sprintf(format, args...))
}

func newGormStore(db *gorm.DB, seed []domain.Book) (*GormStore, error) {
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return seedIfEmpty(tx, seed)
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func seedIfEmpty(tx *gorm.DB, seed []domain.Book) error {
	if len(seed) == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&BookModel{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count catalog: %w", err)
	}
	if count > 0 {
		return nil
	}
	models := seedModels(seed, time.Now().UTC())
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&models, 100).Error; err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db.WithContext(ctx))
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// List returns every book in seed order.
func (s *GormStore) List(ctx context.Context) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.WithContext(ctx).Order("position ASC, id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// Get retrieves one book.
func (s *GormStore) Get(ctx context.Context, id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, fmt.Errorf("get book: %w", err)
	}
	return bookFromModel(model), true, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
