// Package storage implements the §6d persistence contract over Postgres via
// gorm: idempotent record upsert, per-page listing and deletion, and an
// append-only audit event log.
package storage

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm/clause"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/database"
)

// Store implements the persistence contract's four operations directly
// against gorm, rather than through a generic repository abstraction — the
// contract names exactly four operations and none of them are a generic
// paginated CRUD surface.
type Store struct {
	db *database.DB
}

// New wraps an open database connection. Call Migrate once at startup.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the record and audit-event tables.
func (s *Store) Migrate() error {
	return s.db.Migrate(&recordRow{}, &model.AuditEvent{})
}

// recordRow is model.Record's gorm-mapped shape; Images uses pq.StringArray
// against a text[] column rather than a JSON blob, matching the retained
// lib/pq dependency.
type recordRow struct {
	ID          string `gorm:"primaryKey;size:10"`
	URL         string
	Title       string
	PageNumber  int `gorm:"index"`
	PriceMinor  *int64
	Currency    string
	Rating      *float64
	RatingCount *int
	Images      pq.StringArray `gorm:"type:text[]"`
}

func (recordRow) TableName() string { return "records" }

func toRow(r model.Record) recordRow {
	return recordRow{
		ID:          r.ID,
		URL:         r.URL,
		Title:       r.Title,
		PageNumber:  r.PageNumber,
		PriceMinor:  r.PriceMinor,
		Currency:    r.Currency,
		Rating:      r.Rating,
		RatingCount: r.RatingCount,
		Images:      pq.StringArray(r.Images),
	}
}

func fromRow(r recordRow) model.Record {
	return model.Record{
		ID:          r.ID,
		URL:         r.URL,
		Title:       r.Title,
		PageNumber:  r.PageNumber,
		PriceMinor:  r.PriceMinor,
		Currency:    r.Currency,
		Rating:      r.Rating,
		RatingCount: r.RatingCount,
		Images:      []string(r.Images),
	}
}

// UpsertRecord is idempotent by primary identifier: a second call with the
// same ID overwrites every other field.
func (s *Store) UpsertRecord(ctx context.Context, r model.Record) error {
	row := toRow(r)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", r.ID, err)
	}
	return nil
}

// ListByPage returns every record currently stored for pageNumber.
func (s *Store) ListByPage(ctx context.Context, pageNumber int) ([]model.Record, error) {
	var rows []recordRow
	if err := s.db.WithContext(ctx).Where("page_number = ?", pageNumber).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list by page %d: %w", pageNumber, err)
	}
	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// DeleteByPage removes every record stored for pageNumber and returns the
// count removed. Called before re-inserting a page's records only when the
// freshly extracted identifier set differs from what's stored.
func (s *Store) DeleteByPage(ctx context.Context, pageNumber int) (int64, error) {
	res := s.db.WithContext(ctx).Where("page_number = ?", pageNumber).Delete(&recordRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete by page %d: %w", pageNumber, res.Error)
	}
	return res.RowsAffected, nil
}

// RecordEvent appends a success-or-failure audit event for one extraction
// attempt.
func (s *Store) RecordEvent(ctx context.Context, ev model.AuditEvent) error {
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("record event for page %d: %w", ev.PageNumber, err)
	}
	return nil
}

// IdentifierSet returns the set of primary identifiers currently stored for
// pageNumber, used by Product workers to decide whether a page's stored
// records need replacing (§4.5 step 3).
func (s *Store) IdentifierSet(ctx context.Context, pageNumber int) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&recordRow{}).Where("page_number = ?", pageNumber).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("identifier set for page %d: %w", pageNumber, err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

