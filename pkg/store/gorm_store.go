package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 26091701

// GormStore implements DocumentStore on Postgres. Each second-level subtree
// (users/{uid}) is one row; deeper paths are edited inside that row's JSONB
// document under a row lock.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&DocumentModel{}, &IdentityModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Identities returns the identity provider sharing this store's database.
func (s *GormStore) Identities() *GormIdentities {
	return &GormIdentities{db: s.db}
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
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Get reads the value at path. A one-segment path assembles the whole
// collection from its rows.
func (s *GormStore) Get(ctx context.Context, path string) (any, bool, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, false, err
	}
	db := s.db.WithContext(ctx)
	if len(segs) == 1 {
		var models []DocumentModel
		if err := db.Where("path LIKE ? ESCAPE '\\'", collectionPattern(segs[0])).Order("path ASC").Find(&models).Error; err != nil {
			return nil, false, err
		}
		out := make(map[string]any, len(models))
		for _, m := range models {
			doc, err := decodeDocument(m)
			if err != nil {
				return nil, false, err
			}
			if doc != nil {
				out[rowKey(segs[0], m.Path)] = doc
			}
		}
		if len(out) == 0 {
			return nil, false, nil
		}
		return out, true, nil
	}

	var model DocumentModel
	if err := db.Where("path = ?", rowPath(segs)).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	doc, err := decodeDocument(model)
	if err != nil {
		return nil, false, err
	}
	v, ok := lookup(doc, segs[2:])
	return v, ok, nil
}

// Set replaces the value at path.
func (s *GormStore) Set(ctx context.Context, path string, value any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	v, err := canonical(value)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(segs) > 1 {
			return editRow(tx, segs, v)
		}
		if err := tx.Where("path LIKE ? ESCAPE '\\'", collectionPattern(segs[0])).Delete(&DocumentModel{}).Error; err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		children, ok := v.(map[string]any)
		if !ok {
			if list, isList := v.([]any); isList {
				children = asObject(list)
			} else {
				return fmt.Errorf("%w: collection %q needs an object", ErrInvalidPath, segs[0])
			}
		}
		for id, child := range children {
			if err := editRow(tx, []string{segs[0], id}, child); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update merges fields into the object at path within one transaction.
func (s *GormStore) Update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	writes, err := fieldWrites(segs, fields)
	if err != nil {
		return err
	}
	for _, w := range writes {
		if len(w.segs) < 2 {
			return fmt.Errorf("%w: cannot update collection %q directly", ErrInvalidPath, w.segs[0])
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if err := editRow(tx, w.segs, w.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the value at path.
func (s *GormStore) Delete(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

// editRow applies one write to the row owning segs[:2], creating or deleting
// the row as the document appears or empties.
func editRow(tx *gorm.DB, segs []string, value any) error {
	key := rowPath(segs)
	var model DocumentModel
	exists := true
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("path = ?", key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		exists = false
	} else if err != nil {
		return err
	}

	holder := make(map[string]any, 1)
	if exists {
		doc, err := decodeDocument(model)
		if err != nil {
			return err
		}
		if doc != nil {
			holder["doc"] = doc
		}
	}
	setIn(holder, append([]string{"doc"}, segs[2:]...), value)

	doc, ok := holder["doc"]
	if !ok {
		if !exists {
			return nil
		}
		return tx.Where("path = ?", key).Delete(&DocumentModel{}).Error
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	model = DocumentModel{Path: key, Data: datatypes.JSON(data), UpdatedAt: time.Now().UTC()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&model).Error
}

func decodeDocument(m DocumentModel) (any, error) {
	if len(m.Data) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(m.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", m.Path, err)
	}
	return doc, nil
}

func rowPath(segs []string) string {
	return segs[0] + "/" + segs[1]
}

// rowKey is the child key of a row path within its collection.
func rowKey(collection, path string) string {
	return strings.TrimPrefix(path, collection+"/")
}

// collectionPattern matches every row of collection in a LIKE ... ESCAPE '\'
// clause.
func collectionPattern(collection string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(collection) + "/%"
}
