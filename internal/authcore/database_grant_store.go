package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("grant_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("grant_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("grant_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("grant_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("grant_store.unsupported_no_scheme")
)

// DatabaseGrantStore persists provider refresh credentials using GORM.
type DatabaseGrantStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseGrantStore) Driver() string {
	return store.driverLabel
}

type grantRecord struct {
	SubjectID   string `gorm:"column:subject_id;primaryKey"`
	Grant       string `gorm:"column:grant_value;not null"`
	UpdatedUnix int64  `gorm:"column:updated_unix;not null"`
}

func (grantRecord) TableName() string {
	return "provider_grants"
}

// NewDatabaseGrantStore constructs a GORM-backed store from a sqlite:// or
// postgres:// URL.
func NewDatabaseGrantStore(ctx context.Context, databaseURL string) (*DatabaseGrantStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("grant_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("grant_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&grantRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("grant_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseGrantStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Save upserts the subject's grant row atomically, overwriting any rotated
// predecessor in the same statement.
func (store *DatabaseGrantStore) Save(ctx context.Context, subjectID string, grant string) error {
	if strings.TrimSpace(grant) == "" {
		return fmt.Errorf("grant_store.save.%s: %w", store.driverLabel, ErrGrantEmpty)
	}
	record := grantRecord{
		SubjectID:   subjectID,
		Grant:       grant,
		UpdatedUnix: time.Now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"grant_value", "updated_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("grant_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Lookup returns the subject's grant.
func (store *DatabaseGrantStore) Lookup(ctx context.Context, subjectID string) (string, error) {
	var record grantRecord
	err := store.db.WithContext(ctx).Where("subject_id = ?", subjectID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("grant_store.lookup.%s: %w", store.driverLabel, ErrGrantNotFound)
		}
		return "", fmt.Errorf("grant_store.lookup.%s: %w", store.driverLabel, err)
	}
	return record.Grant, nil
}

// Delete removes the subject's grant row; deleting an absent row is not an error.
func (store *DatabaseGrantStore) Delete(ctx context.Context, subjectID string) error {
	result := store.db.WithContext(ctx).Where("subject_id = ?", subjectID).Delete(&grantRecord{})
	if result.Error != nil {
		return fmt.Errorf("grant_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("grant_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("grant_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("grant_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("grant_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
