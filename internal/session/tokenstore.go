package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zulandar/product-assistant/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// TokenKey is the fixed name the session token is persisted under.
const TokenKey = "token"

// TokenStore persists the session token outside process memory so it
// survives a restart. An absent token loads as "".
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
	Close() error
}

// OpenTokenStore opens the backend selected by cfg.
func OpenTokenStore(cfg config.SessionConfig) (TokenStore, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return OpenDBTokenStore(cfg.Path)
	case config.StoreFile, "":
		return NewFileTokenStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("session: unknown token store %q", cfg.Store)
	}
}

// FileTokenStore keeps the token in a single 0600 file.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a FileTokenStore at path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (f *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("session: read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("session: create token dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("session: write token: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: write token: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: remove token: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Close() error { return nil }

// Setting is a named client-side value. The token row is the only one
// written.
type Setting struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Setting) TableName() string { return "client_settings" }

// DBTokenStore keeps the token in a sqlite database.
type DBTokenStore struct {
	db *gorm.DB
}

// OpenDBTokenStore opens (creating if needed) the sqlite database at path.
func OpenDBTokenStore(path string) (*DBTokenStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("session: create state dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	return NewDBTokenStore(db)
}

// NewDBTokenStore wraps an open database, migrating the settings table.
func NewDBTokenStore(db *gorm.DB) (*DBTokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("session: db is required")
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, fmt.Errorf("session: auto-migrate: %w", err)
	}
	return &DBTokenStore{db: db}, nil
}

func (d *DBTokenStore) Load() (string, error) {
	var s Setting
	err := d.db.Where("name = ?", TokenKey).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: load token: %w", err)
	}
	return s.Value, nil
}

func (d *DBTokenStore) Save(token string) error {
	s := Setting{Name: TokenKey, Value: token, UpdatedAt: time.Now()}
	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	return nil
}

func (d *DBTokenStore) Clear() error {
	if err := d.db.Where("name = ?", TokenKey).Delete(&Setting{}).Error; err != nil {
		return fmt.Errorf("session: clear token: %w", err)
	}
	return nil
}

func (d *DBTokenStore) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
