package sqlstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-resident/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultActivityPerPage = 25

// RetentionPolicy bounds the activity ledger by age and by row count. Zero
// values disable the corresponding bound.
type RetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityRecord]
	now  func() time.Time
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo, now: time.Now}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return fmt.Errorf("sqlstore: activity action is required")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = s.now().UTC()
	}
	status := strings.TrimSpace(string(entry.Status))
	if status == "" {
		status = string(core.ActivityStatusOK)
	}
	generation := int64(math.MaxInt64)
	if entry.Generation <= math.MaxInt64 {
		generation = int64(entry.Generation)
	}

	record := &activityRecord{
		ID:            id,
		Action:        action,
		Status:        status,
		ResidentID:    optionalString(entry.ResidentID),
		Identity:      optionalString(entry.Identity),
		Impersonating: entry.Impersonating,
		Generation:    generation,
		Error:         strings.TrimSpace(entry.Error),
		Metadata:      copyAnyMap(entry.Metadata),
		CreatedAt:     createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if residentID := strings.TrimSpace(filter.ResidentID); residentID != "" {
		selectors = append(selectors, repository.SelectBy("resident_id", "=", residentID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	items := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, activityRecordToDomain(record))
	}
	return core.ActivityPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// Prune deletes entries older than the policy TTL, then the oldest entries
// beyond the row cap. It returns the number of deleted rows.
func (s *ActivityStore) Prune(ctx context.Context, policy RetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().UTC().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*activityRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*activityRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		if excess := total - policy.RowCap; excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM resident_session_activity WHERE id IN (SELECT id FROM resident_session_activity ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func activityRecordToDomain(record *activityRecord) core.ActivityEntry {
	if record == nil {
		return core.ActivityEntry{}
	}
	entry := core.ActivityEntry{
		ID:            record.ID,
		Action:        record.Action,
		Status:        core.ActivityStatus(record.Status),
		Impersonating: record.Impersonating,
		Error:         record.Error,
		Metadata:      copyAnyMap(record.Metadata),
		CreatedAt:     record.CreatedAt,
	}
	if record.Generation > 0 {
		entry.Generation = uint64(record.Generation)
	}
	if record.ResidentID != nil {
		entry.ResidentID = strings.TrimSpace(*record.ResidentID)
	}
	if record.Identity != nil {
		entry.Identity = strings.TrimSpace(*record.Identity)
	}
	return entry
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
