// Package processors reacts to integrated changes with follow-up mutations,
// such as answering a requisition or receiving a shipment.
package processors

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
)

const defaultBatchSize = 100

// Processor inspects one changelog entry and may write further rows through
// store. It returns a description of what it did, or "" when the entry does
// not concern it.
//
// ChangelogFilter selects the entries worth loading given the site's active
// stores. A nil filter means no entry can concern the processor.
type Processor interface {
	Name() string
	CursorKey() models.KeyType
	ChangelogFilter(active []*models.StoreRow) *models.ChangelogFilter
	TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error)
}

// Runner runs processors over changelog entries, each group of processors
// sharing a cursor advancing independently
type Runner struct {
	db         *sql.DB
	siteID     int32
	processors []Processor
	batchSize  int
	logger     *observability.Logger
}

// NewRunner creates a runner for the processors, which are tried in order
func NewRunner(db *sql.DB, siteID int32, processors ...Processor) *Runner {
	return &Runner{
		db:         db,
		siteID:     siteID,
		processors: processors,
		batchSize:  defaultBatchSize,
		logger:     observability.GetLogger().WithField("component", "processors"),
	}
}

// Default returns the processors shipped with the server
func Default() []Processor {
	now := func() time.Time { return time.Now().UTC().Truncate(time.Second) }
	return []Processor{
		&CreateResponseRequisition{now: now},
		&FinaliseRequestRequisition{now: now},
		&CreateInboundShipment{now: now},
	}
}

type group struct {
	key        models.KeyType
	processors []Processor
	filters    []*models.ChangelogFilter
}

// Run processes everything logged since each group's cursor. Entries logged
// while it runs are left for the next call.
func (r *Runner) Run(ctx context.Context) error {
	ctx, span := observability.StartServiceSpan(ctx, "processors", "run")
	defer span.End()

	for _, g := range r.groups() {
		if err := r.runGroup(ctx, g); err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("processors %s: %w", g.key, err)
		}
	}
	observability.SetSuccess(span)
	return nil
}

func (r *Runner) groups() []group {
	var groups []group
	index := map[models.KeyType]int{}
	for _, p := range r.processors {
		i, ok := index[p.CursorKey()]
		if !ok {
			i = len(groups)
			index[p.CursorKey()] = i
			groups = append(groups, group{key: p.CursorKey()})
		}
		groups[i].processors = append(groups[i].processors, p)
	}
	return groups
}

func (r *Runner) runGroup(ctx context.Context, g group) error {
	kv := repository.NewKeyValueRepository(r.db)
	changelog := repository.NewChangelogRepository(r.db)

	cursor, err := kv.GetCursor(ctx, g.key)
	if err != nil {
		return err
	}
	latest, err := changelog.LatestCursor(ctx)
	if err != nil {
		return err
	}
	active, err := repository.NewSyncRowStore(r.db, r.siteID).ActiveStores(ctx)
	if err != nil {
		return err
	}

	g.filters = make([]*models.ChangelogFilter, len(g.processors))
	for i, p := range g.processors {
		g.filters[i] = p.ChangelogFilter(active)
	}
	filter := mergeFilters(g.filters, latest)

	// scan pages through entries; cursor only moves while nothing has failed
	scan := cursor
	failed := false
	for filter != nil {
		entries, err := changelog.Changelogs(ctx, scan, r.batchSize, filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}

		for i := range entries {
			entry := entries[i]
			scan = entry.Cursor
			if err := r.process(ctx, g, &entry); err != nil {
				r.logger.WithContext(ctx).WithFields(map[string]interface{}{
					"cursor": entry.Cursor,
					"table":  entry.TableName,
					"record": entry.RecordID,
				}).Errorf("Processor failed: %v", err)
				failed = true
				continue
			}
			if !failed {
				cursor = entry.Cursor
			}
		}
	}

	// entries up to latest that the filter left out need no processing
	if !failed && latest > cursor {
		cursor = latest
	}
	return kv.SetInt(ctx, g.key, cursor)
}

// mergeFilters combines the group's filters into one query. Routing is only
// kept when every filter is routed; otherwise the union would drop entries
// an unrouted processor wants.
func mergeFilters(filters []*models.ChangelogFilter, latest int64) *models.ChangelogFilter {
	var merged *models.ChangelogFilter
	routed := true
	for _, f := range filters {
		if f == nil {
			continue
		}
		if merged == nil {
			merged = &models.ChangelogFilter{MaxCursor: latest}
		}
		merged.TableNames = append(merged.TableNames, f.TableNames...)
		if !f.HasRouting() {
			routed = false
			continue
		}
		merged.StoreIDs = append(merged.StoreIDs, f.StoreIDs...)
		merged.NameLinkIDs = append(merged.NameLinkIDs, f.NameLinkIDs...)
		merged.IncludeNullStore = merged.IncludeNullStore || f.IncludeNullStore
	}
	if merged != nil && !routed {
		merged.StoreIDs, merged.NameLinkIDs, merged.IncludeNullStore = nil, nil, false
	}
	return merged
}

// process tries each processor on an entry in its own transaction; the first
// one that acts wins
func (r *Runner) process(ctx context.Context, g group, entry *models.ChangelogRow) error {
	return repository.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		store := repository.NewSyncRowStore(tx, r.siteID)
		for i, p := range g.processors {
			if !matches(g.filters[i], entry) {
				continue
			}
			result, err := p.TryProcessRecord(ctx, store, entry)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			if result != "" {
				r.logger.WithContext(ctx).WithFields(map[string]interface{}{
					"processor": p.Name(),
					"record":    entry.RecordID,
				}).Info(result)
				return nil
			}
		}
		return nil
	})
}

func matches(filter *models.ChangelogFilter, entry *models.ChangelogRow) bool {
	if filter == nil {
		return false
	}
	if filter.RowAction != nil && *filter.RowAction != entry.RowAction {
		return false
	}
	if len(filter.TableNames) > 0 && !slices.Contains(filter.TableNames, entry.TableName) {
		return false
	}
	if !filter.HasRouting() {
		return true
	}
	switch {
	case entry.StoreID != nil && slices.Contains(filter.StoreIDs, *entry.StoreID):
		return true
	case entry.NameLinkID != nil && slices.Contains(filter.NameLinkIDs, *entry.NameLinkID):
		return true
	default:
		return filter.IncludeNullStore && entry.StoreID == nil
	}
}

// counterpartyFilter selects upserts of table whose counter-party is one of
// the active stores
func counterpartyFilter(table models.TableName, active []*models.StoreRow) *models.ChangelogFilter {
	if len(active) == 0 {
		return nil
	}
	filter := &models.ChangelogFilter{
		TableNames: []models.TableName{table},
		RowAction:  upsertOnly(),
	}
	for _, s := range active {
		filter.NameLinkIDs = append(filter.NameLinkIDs, s.NameLinkID)
	}
	return filter
}

// activeStore returns the store a name represents when this site is
// authoritative for it
func activeStore(ctx context.Context, store *repository.SyncRowStore, nameID string) (*models.StoreRow, error) {
	s, err := store.Stores.FindByNameID(ctx, nameID)
	if err != nil || s == nil {
		return nil, err
	}
	if s.SiteID != store.SiteID() || s.IsDisabled {
		return nil, nil
	}
	return s, nil
}

func upsertOnly() *models.RowAction {
	action := models.RowActionUpsert
	return &action
}
