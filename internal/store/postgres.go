package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type sessionRow struct {
	SessionID string    `gorm:"column:session_id;primaryKey"`
	State     string    `gorm:"column:state"`
	Initial   []byte    `gorm:"column:initial;type:jsonb"`
	Snapshot  []byte    `gorm:"column:snapshot;type:jsonb"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (sessionRow) TableName() string { return "combat_sessions" }

type eventRow struct {
	SessionID string    `gorm:"column:session_id;primaryKey"`
	Seq       uint64    `gorm:"column:seq;primaryKey;autoIncrement:false"`
	Kind      string    `gorm:"column:kind"`
	Payload   []byte    `gorm:"column:payload;type:jsonb"`
	Timestamp time.Time `gorm:"column:timestamp"`
}

func (eventRow) TableName() string { return "combat_events" }

// Postgres backs the store with the session table plus the append-only
// event table keyed (session_id, seq).
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&sessionRow{}, &eventRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveSession(ctx context.Context, rec SessionRecord) error {
	row := sessionRow{
		SessionID: rec.SessionID,
		State:     rec.State,
		Initial:   rec.Initial,
		Snapshot:  rec.Snapshot,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	// the initial snapshot is written once and never overwritten
	assign := []string{"state", "snapshot", "updated_at"}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	var row sessionRow
	err := p.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return SessionRecord{
		SessionID: row.SessionID,
		State:     row.State,
		Initial:   row.Initial,
		Snapshot:  row.Snapshot,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (p *Postgres) AppendEntries(ctx context.Context, recs []EventRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]eventRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, eventRow{
			SessionID: rec.SessionID,
			Seq:       rec.Seq,
			Kind:      rec.Kind,
			Payload:   rec.Payload,
			Timestamp: rec.Timestamp,
		})
	}
	// ON CONFLICT DO NOTHING keeps retried batches idempotent by (session_id, seq)
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "seq"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("append %d entries: %w", len(recs), err)
	}
	return nil
}

func (p *Postgres) ListEntries(ctx context.Context, sessionID string, fromSeq uint64, limit int) ([]EventRecord, error) {
	q := p.db.WithContext(ctx).
		Where("session_id = ? AND seq >= ?", sessionID, fromSeq).
		Order("seq asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", sessionID, err)
	}
	recs := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, EventRecord{
			SessionID: row.SessionID,
			Seq:       row.Seq,
			Kind:      row.Kind,
			Payload:   row.Payload,
			Timestamp: row.Timestamp,
		})
	}
	return recs, nil
}
