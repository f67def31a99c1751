package devserver

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// User is a registered account.
type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash []byte `gorm:"not null"`
	CreatedAt    time.Time
}

// AccessToken is an issued bearer token.
type AccessToken struct {
	Value     string `gorm:"primaryKey;size:64"`
	UserID    uint   `gorm:"not null;index"`
	CreatedAt time.Time
}

// ChatExchange is one stored user/bot exchange. Title is set on the first
// exchange of a conversation only.
type ChatExchange struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	ChatID      string    `gorm:"size:64;not null;index"`
	UserID      uint      `gorm:"not null;index"`
	Title       *string   `gorm:"size:64"`
	UserMessage string    `gorm:"type:text"`
	BotResponse string    `gorm:"type:text"`
	Timestamp   time.Time `gorm:"index"`
}

// CatalogSupplier is a supplier in the seeded catalog.
type CatalogSupplier struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"size:128;not null;index"`
	Email      string `gorm:"size:255"`
	Phone      string `gorm:"size:32"`
	Address    string `gorm:"size:255"`
	Categories string `gorm:"size:255"` // comma-separated
}

// CatalogProduct is a product in the seeded catalog.
type CatalogProduct struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"size:128;not null;index"`
	Brand       string  `gorm:"size:64;index"`
	Price       float64 `gorm:"not null"`
	Category    string  `gorm:"size:64;index"`
	Description string  `gorm:"type:text"`
	SupplierID  uint    `gorm:"index"`
}

// AllModels returns every model the stand-in backend migrates.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&AccessToken{},
		&ChatExchange{},
		&CatalogSupplier{},
		&CatalogProduct{},
	}
}

// OpenDB opens the sqlite database at path, migrates it and seeds the
// catalog. ":memory:" is pinned to a single connection so every request
// sees the same database.
func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("devserver: open %s: %w", path, err)
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("devserver: open %s: %w", path, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables and seeds the catalog. It is safe to run
// against an existing database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("devserver: auto-migrate: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seedSuppliers()).Error; err != nil {
		return fmt.Errorf("devserver: seed suppliers: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seedProducts()).Error; err != nil {
		return fmt.Errorf("devserver: seed products: %w", err)
	}
	return nil
}
