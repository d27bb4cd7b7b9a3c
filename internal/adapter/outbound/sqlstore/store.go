// Package sqlstore implements catalog.ToolStore on a SQL database through
// GORM. PostgreSQL is used in production; SQLite serves local runs and tests.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// TableName is the catalog table.
const TableName = "adapter_tools"

// toolRow is the persisted form of catalog.ToolRecord.
type toolRow struct {
	ID                    int64              `gorm:"primaryKey;autoIncrement"`
	Name                  string             `gorm:"size:255;not null;uniqueIndex"`
	Description           string             `gorm:"type:text"`
	Provider              string             `gorm:"size:128"`
	Category              string             `gorm:"size:128"`
	AdapterType           string             `gorm:"size:32;not null"`
	Enabled               bool               `gorm:"not null;index"`
	MCPServerURL          string             `gorm:"column:mcp_server_url;type:text"`
	OpenAPIURL            string             `gorm:"column:openapi_url;type:text"`
	BaseURL               string             `gorm:"type:text"`
	ContentType           string             `gorm:"size:32"`
	OperationIDs          []string           `gorm:"column:operation_ids;type:text;serializer:json"`
	AuthConfig            catalog.AuthConfig `gorm:"type:text;serializer:json"`
	Tags                  []string           `gorm:"type:text;serializer:json"`
	CredentialMode        string             `gorm:"size:32"`
	CredentialID          *int64
	CredentialName        string         `gorm:"size:255"`
	CredentialType        string         `gorm:"size:255"`
	CredentialEnvironment string         `gorm:"size:64"`
	OrgID                 string         `gorm:"size:255;index"`
	Metadata              map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (toolRow) TableName() string { return TableName }

func rowFromRecord(r *catalog.ToolRecord) *toolRow {
	return &toolRow{
		ID:                    r.ID,
		Name:                  r.Name,
		Description:           r.Description,
		Provider:              r.Provider,
		Category:              r.Category,
		AdapterType:           string(r.AdapterType),
		Enabled:               r.Enabled,
		MCPServerURL:          r.MCPServerURL,
		OpenAPIURL:            r.OpenAPIURL,
		BaseURL:               r.BaseURL,
		ContentType:           r.ContentType,
		OperationIDs:          r.OperationIDs,
		AuthConfig:            r.AuthConfig,
		Tags:                  r.Tags,
		CredentialMode:        string(r.CredentialMode),
		CredentialID:          r.CredentialID,
		CredentialName:        r.CredentialName,
		CredentialType:        r.CredentialType,
		CredentialEnvironment: r.CredentialEnvironment,
		OrgID:                 r.OrgID,
		Metadata:              r.Metadata,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func (row *toolRow) record() *catalog.ToolRecord {
	r := &catalog.ToolRecord{
		ID:                    row.ID,
		Name:                  row.Name,
		Description:           row.Description,
		Provider:              row.Provider,
		Category:              row.Category,
		AdapterType:           catalog.AdapterType(row.AdapterType),
		Enabled:               row.Enabled,
		MCPServerURL:          row.MCPServerURL,
		OpenAPIURL:            row.OpenAPIURL,
		BaseURL:               row.BaseURL,
		ContentType:           row.ContentType,
		OperationIDs:          row.OperationIDs,
		AuthConfig:            row.AuthConfig,
		Tags:                  row.Tags,
		CredentialMode:        catalog.CredentialMode(row.CredentialMode),
		CredentialID:          row.CredentialID,
		CredentialName:        row.CredentialName,
		CredentialType:        row.CredentialType,
		CredentialEnvironment: row.CredentialEnvironment,
		OrgID:                 row.OrgID,
		Metadata:              row.Metadata,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
	return r.Clone()
}

// Store implements catalog.ToolStore on GORM.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and creates the catalog table if it is
// missing. No other schema changes are made.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and ensures the catalog table exists.
func New(db *gorm.DB) (*Store, error) {
	if !db.Migrator().HasTable(&toolRow{}) {
		if err := db.Migrator().CreateTable(&toolRow{}); err != nil {
			return nil, fmt.Errorf("create %s table: %w", TableName, err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// List returns tools ordered by ID.
func (s *Store) List(ctx context.Context, enabledOnly bool) ([]catalog.ToolRecord, error) {
	q := s.db.WithContext(ctx).Order("id")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var rows []toolRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]catalog.ToolRecord, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].record())
	}
	return out, nil
}

// Get returns a single tool by ID.
func (s *Store) Get(ctx context.Context, id int64) (*catalog.ToolRecord, error) {
	var row toolRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, mapError(err)
	}
	return row.record(), nil
}

// GetByName returns a single tool by name.
func (s *Store) GetByName(ctx context.Context, name string) (*catalog.ToolRecord, error) {
	var row toolRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, mapError(err)
	}
	return row.record(), nil
}

// Create inserts a tool with fresh timestamps.
func (s *Store) Create(ctx context.Context, record *catalog.ToolRecord) (*catalog.ToolRecord, error) {
	row := rowFromRecord(record)
	row.ID = 0
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, row.Name, 0); err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return nil, mapError(err)
	}
	return row.record(), nil
}

// Update applies a partial update and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id int64, patch catalog.ToolPatch) (*catalog.ToolRecord, error) {
	var out *catalog.ToolRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row toolRow
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		rec := row.record()
		if patch.Name != nil && *patch.Name != rec.Name {
			if err := ensureNameFree(tx, *patch.Name, id); err != nil {
				return err
			}
		}
		patch.Apply(rec)
		rec.UpdatedAt = time.Now().UTC()
		if rec.UpdatedAt.Before(row.UpdatedAt) {
			rec.UpdatedAt = row.UpdatedAt
		}
		updated := rowFromRecord(rec)
		if err := tx.Save(updated).Error; err != nil {
			return err
		}
		out = updated.record()
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// Delete removes a tool by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&toolRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete tool: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return catalog.ErrToolNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func ensureNameFree(tx *gorm.DB, name string, exceptID int64) error {
	var count int64
	if err := tx.Model(&toolRow{}).Where("name = ? AND id <> ?", name, exceptID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return catalog.ErrDuplicateToolName
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return catalog.ErrToolNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return catalog.ErrDuplicateToolName
	case errors.Is(err, catalog.ErrToolNotFound), errors.Is(err, catalog.ErrDuplicateToolName):
		return err
	default:
		return fmt.Errorf("tool store: %w", err)
	}
}

// Compile-time interface verification.
var _ catalog.ToolStore = (*Store)(nil)
