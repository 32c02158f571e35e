package eventlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nameshare/core/events"
)

// EventRecord is one committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        int64     `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Open connects to dsn. postgres:// and postgresql:// URLs use the Postgres
// driver; anything else is treated as a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("eventlog: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}

// Journal persists every event it receives. It implements events.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq int64
}

// NewJournal resumes the sequence stored in db.
func NewJournal(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("eventlog: db required")
	}
	if log == nil {
		log = slog.Default()
	}
	var last struct{ Max int64 }
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(seq), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("eventlog: load sequence: %w", err)
	}
	return &Journal{db: db, logger: log.With("component", "eventlog"), now: time.Now, seq: last.Max}, nil
}

// Append stores evt and returns its record.
func (j *Journal) Append(evt events.Event) (*EventRecord, error) {
	attrs := map[string]string{}
	if p, ok := evt.(events.Payload); ok {
		if rendered := p.Event(); rendered != nil && rendered.Attributes != nil {
			attrs = rendered.Attributes
		}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	rec := &EventRecord{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       evt.EventType(),
		Attributes: string(encoded),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("eventlog: append %s: %w", rec.Type, err)
	}
	j.seq = rec.Seq
	return rec, nil
}

// Emit implements events.Emitter. Write failures are logged.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if _, err := j.Append(evt); err != nil {
		j.logger.Error("journal write failed", "type", evt.EventType(), "error", err)
	}
}

// List returns up to limit of the most recent records, newest first.
func (j *Journal) List(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []EventRecord
	err := j.db.Order("seq DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ListType is List restricted to one event type.
func (j *Journal) ListType(eventType string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []EventRecord
	err := j.db.Where("type = ?", eventType).Order("seq DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
