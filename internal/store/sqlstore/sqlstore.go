package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var errVersionConflict = errors.New("sqlstore: version conflict")

// document is one JSON value of a collection. Version drives optimistic
// compare-and-set on every write.
type document struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:191"`
	Data       string `gorm:"type:text;not null"`
	Version    int64  `gorm:"not null;default:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (document) TableName() string {
	return "documents"
}

type Config struct {
	Dialect      string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store persists collections in a single SQL table through gorm
type Store struct {
	db  *gorm.DB
	ids *store.IDGenerator
}

// Open connects to the configured database and migrates the documents table
func Open(cfg Config, ids *store.IDGenerator) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger: logger.NewGormLogger(gormlogger.Warn, 200*time.Millisecond),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Dialect {
	case DialectPostgres:
		var sqlDB *sql.DB
		sqlDB, err = connectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	case DialectSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", cfg.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}

	return New(db, ids)
}

// New wraps an existing gorm handle
func New(db *gorm.DB, ids *store.IDGenerator) (*Store, error) {
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &Store{db: db, ids: ids}, nil
}

func connectPostgres(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	return db, nil
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]store.Document, error) {
	var rows []document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to list documents")
		return nil, err
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, store.Document{ID: row.ID, Data: []byte(row.Data)})
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	row, err := s.find(ctx, s.db, collection, id)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to get document")
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &store.Document{ID: row.ID, Data: []byte(row.Data)}, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data []byte) error {
	now := time.Now().UTC()
	row := document{
		Collection: collection,
		ID:         id,
		Data:       string(data),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"data":       row.Data,
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to put document")
		return err
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.AtomicUpdate(ctx, collection, id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrNotFound
		}
		return store.MergeFields(current, fields)
	})
	return err
}

func (s *Store) AtomicUpdate(ctx context.Context, collection, id string, fn store.UpdateFunc) ([]byte, error) {
	for attempt := 0; attempt < store.MaxCASAttempts; attempt++ {
		row, err := s.find(ctx, s.db, collection, id)
		if err != nil {
			return nil, err
		}

		var current []byte
		if row != nil {
			current = []byte(row.Data)
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return current, nil
		}

		err = s.compareAndSet(ctx, s.db, collection, id, row, next)
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"collection": collection,
		"id":         id,
	}).Warn("Compare-and-set attempts exhausted")
	return nil, store.ErrContention
}

func (s *Store) BatchWrite(ctx context.Context, writes map[string]any) error {
	grouped, err := store.GroupWrites(writes)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for attempt := 0; attempt < store.MaxCASAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, key := range keys {
				dw := grouped[key]
				row, err := s.find(ctx, tx, dw.Path.Collection, dw.Path.ID)
				if err != nil {
					return err
				}
				var current []byte
				if row != nil {
					current = []byte(row.Data)
				}
				next, err := dw.Apply(current)
				if err != nil {
					return err
				}
				if next == nil {
					if row == nil {
						continue
					}
					res := tx.Where("collection = ? AND id = ? AND version = ?", row.Collection, row.ID, row.Version).Delete(&document{})
					if res.Error != nil {
						return res.Error
					}
					if res.RowsAffected == 0 {
						return errVersionConflict
					}
					continue
				}
				if err := s.compareAndSet(ctx, tx, dw.Path.Collection, dw.Path.ID, row, next); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			logger.GetLogger().WithError(err).WithField("writes", len(writes)).Error("Failed to apply batch write")
		}
		return err
	}
	return store.ErrContention
}

func (s *Store) NewID() string {
	return s.ids.NewID()
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) find(ctx context.Context, db *gorm.DB, collection, id string) (*document, error) {
	var row document
	err := db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// compareAndSet inserts when prev is nil and otherwise updates only if the
// stored version still equals prev.Version.
func (s *Store) compareAndSet(ctx context.Context, db *gorm.DB, collection, id string, prev *document, next []byte) error {
	now := time.Now().UTC()

	if prev == nil {
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&document{
			Collection: collection,
			ID:         id,
			Data:       string(next),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errVersionConflict
		}
		return nil
	}

	res := db.WithContext(ctx).Model(&document{}).
		Where("collection = ? AND id = ? AND version = ?", collection, id, prev.Version).
		Updates(map[string]interface{}{
			"data":       string(next),
			"version":    prev.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}
