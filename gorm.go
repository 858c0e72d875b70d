package profilex

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMStore is a RecordStore backed by a relational database through GORM.
// Both patch shapes compile to a single upsert statement, so no
// read-modify-write step exists: the error counter is incremented in SQL.
type GORMStore struct {
	db        *gorm.DB
	tableName string
}

var _ RecordStore = &GORMStore{}

type recordRow struct {
	Subject           string         `gorm:"not null;primaryKey;size:255"`
	Source            string         `gorm:"not null;primaryKey;size:64"`
	Payload           datatypes.JSON `gorm:"type:json"`
	LastUpdated       time.Time
	LastAttempt       time.Time `gorm:"index"`
	ExpiresAt         time.Time
	ConsecutiveErrors int `gorm:"not null;default:0"`
	LastError         string
}

// GORMStoreConfig holds configuration for GORMStore
type GORMStoreConfig struct {
	// DB is the GORM database connection
	DB *gorm.DB

	// TableName is the name of the records table
	TableName string
}

// NewGORMStore creates a new GORM-based record store with configuration
func NewGORMStore(config *GORMStoreConfig) *GORMStore {
	if config.DB == nil {
		panic("DB is required")
	}
	if config.TableName == "" {
		panic("TableName is required")
	}

	return &GORMStore{
		db:        config.DB,
		tableName: config.TableName,
	}
}

// Migrate creates or updates the records table schema
func (g *GORMStore) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).Table(g.tableName).AutoMigrate(&recordRow{}); err != nil {
		return errors.Wrap(err, "failed to migrate records table")
	}
	return nil
}

// FindAll returns the records for subject, ordered by source name.
func (g *GORMStore) FindAll(ctx context.Context, subject string) ([]Record, error) {
	var rows []recordRow
	if err := g.db.WithContext(ctx).
		Table(g.tableName).
		Where("subject = ?", subject).
		Order("source").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load records for subject: %s", subject)
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return records, nil
}

// Find returns the record for one (subject, source) pair.
func (g *GORMStore) Find(ctx context.Context, subject, source string) (Record, error) {
	var row recordRow
	if err := g.db.WithContext(ctx).
		Table(g.tableName).
		Where("subject = ? AND source = ?", subject, source).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, &ErrRecordNotFound{Subject: subject, Source: source}
		}
		return Record{}, errors.Wrapf(err, "failed to load record for subject: %s source: %s", subject, source)
	}
	return row.record(), nil
}

// Upsert creates or updates the record for (subject, source) in one
// statement.
func (g *GORMStore) Upsert(ctx context.Context, subject, source string, patch Patch) error {
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "subject"}, {Name: "source"}},
	}

	row := recordRow{
		Subject:     subject,
		Source:      source,
		LastUpdated: patch.LastUpdated,
		LastAttempt: patch.LastAttempt,
		ExpiresAt:   patch.ExpiresAt,
	}

	if patch.IncrementErrors {
		// Failure write: keep the stored payload and count the error.
		row.Payload = datatypes.JSON(patch.InsertPayload)
		row.ConsecutiveErrors = 1
		row.LastError = patch.LastError
		conflict.DoUpdates = clause.Assignments(map[string]interface{}{
			"last_attempt":       patch.LastAttempt,
			"expires_at":         patch.ExpiresAt,
			"consecutive_errors": gorm.Expr("consecutive_errors + 1"),
			"last_error":         patch.LastError,
		})
	} else {
		row.Payload = datatypes.JSON(patch.Payload)
		conflict.DoUpdates = clause.AssignmentColumns([]string{
			"payload", "last_updated", "last_attempt", "expires_at", "consecutive_errors", "last_error",
		})
	}

	if err := g.db.WithContext(ctx).
		Table(g.tableName).
		Clauses(conflict).
		Create(&row).Error; err != nil {
		return errors.Wrapf(err, "failed to upsert record for subject: %s source: %s", subject, source)
	}
	return nil
}

func (row recordRow) record() Record {
	return Record{
		Subject:           row.Subject,
		Source:            row.Source,
		Payload:           []byte(row.Payload),
		LastUpdated:       row.LastUpdated,
		LastAttempt:       row.LastAttempt,
		ExpiresAt:         row.ExpiresAt,
		ConsecutiveErrors: row.ConsecutiveErrors,
		LastError:         row.LastError,
	}
}
