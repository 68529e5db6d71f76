package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/halftimetv/halftime/internal/database"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/observability"
)

// Store persists events through the shared database layer. Inserts
// happen inside the request so a success response means the row is
// durable.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// NewStore creates a Store and runs the event schema migration.
func NewStore(db *database.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "migrating analytics schema")
	}
	return &Store{
		db:     db,
		logger: observability.WithComponent(logger, "analytics"),
	}, nil
}

// Insert records an event and returns its externally visible id. A
// zero timestamp is filled with the current time, matching players
// that omit it.
func (s *Store) Insert(ctx context.Context, e *Event) (string, error) {
	if !e.Kind.Valid() {
		return "", fault.New(fault.KindInvalidInput, "unknown event kind: %s", e.Kind)
	}
	if e.AdID == "" {
		return "", fault.New(fault.KindInvalidInput, "event requires ad_id")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return "", fault.Wrap(fault.KindInternal, err, "recording %s event", e.Kind)
	}

	s.logger.Info("event recorded",
		slog.String("kind", string(e.Kind)),
		slog.String("ad_id", e.AdID),
		slog.String("show", e.ShowName))
	return e.EventID(), nil
}

// CountsByKind returns, for one ad, how many events of each kind have
// been recorded.
func (s *Store) CountsByKind(ctx context.Context, adID string) (map[Kind]int64, error) {
	var rows []struct {
		Kind  Kind
		Count int64
	}
	err := s.db.WithContext(ctx).
		Model(&Event{}).
		Select("kind, count(*) as count").
		Where("ad_id = ?", adID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "counting events for ad %s", adID)
	}
	counts := make(map[Kind]int64, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Count
	}
	return counts, nil
}

// Recent returns the newest events of the given kind, most recent
// first. A zero kind returns events of every kind.
func (s *Store) Recent(ctx context.Context, kind Kind, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&Event{}).Order("id desc").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "listing events")
	}
	return events, nil
}
