package translations

import (
	"fmt"

	"github.com/supplysync/server/internal/models"
)

// Registry holds the translators in pull order: every table comes after the
// tables it depends on.
type Registry struct {
	ordered  []Translator
	byTable  map[models.TableName]Translator
	byLegacy map[string]Translator
	index    map[models.TableName]int
}

// NewRegistry orders the translators by their pull dependencies. Ties keep
// registration order. Unknown dependencies and cycles are errors.
func NewRegistry(translators ...Translator) (*Registry, error) {
	r := &Registry{
		byTable:  make(map[models.TableName]Translator, len(translators)),
		byLegacy: make(map[string]Translator, len(translators)),
		index:    make(map[models.TableName]int, len(translators)),
	}

	for _, t := range translators {
		if _, exists := r.byTable[t.TableName()]; exists {
			return nil, fmt.Errorf("duplicate translator for table %s", t.TableName())
		}
		r.byTable[t.TableName()] = t
		r.byLegacy[t.LegacyTableName()] = t
	}

	pending := make(map[models.TableName]int, len(translators))
	for _, t := range translators {
		for _, dep := range t.PullDependencies() {
			if _, ok := r.byTable[dep]; !ok {
				return nil, fmt.Errorf("table %s depends on unregistered table %s", t.TableName(), dep)
			}
		}
		pending[t.TableName()] = len(t.PullDependencies())
	}

	placed := make(map[models.TableName]bool, len(translators))
	for len(r.ordered) < len(translators) {
		progressed := false
		for _, t := range translators {
			if placed[t.TableName()] || pending[t.TableName()] > 0 {
				continue
			}
			placed[t.TableName()] = true
			r.index[t.TableName()] = len(r.ordered)
			r.ordered = append(r.ordered, t)
			progressed = true

			for _, other := range translators {
				for _, dep := range other.PullDependencies() {
					if dep == t.TableName() {
						pending[other.TableName()]--
					}
				}
			}
			// Restart so earlier registrations win ties
			break
		}
		if !progressed {
			return nil, fmt.Errorf("pull dependencies contain a cycle")
		}
	}

	return r, nil
}

// DefaultRegistry returns a registry with every synced table
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		NewNameTranslator(),
		NewStoreTranslator(),
		NewNameStoreJoinTranslator(),
		NewStocktakeTranslator(),
		NewRequisitionTranslator(),
		NewInvoiceTranslator(),
		NewInvoiceLineTranslator(),
		NewSyncFileReferenceTranslator(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// PullOrder returns the tables in integration order
func (r *Registry) PullOrder() []models.TableName {
	tables := make([]models.TableName, len(r.ordered))
	for i, t := range r.ordered {
		tables[i] = t.TableName()
	}
	return tables
}

// OrderIndex is the position of a table in pull order, or -1 if unknown
func (r *Registry) OrderIndex(table models.TableName) int {
	if i, ok := r.index[table]; ok {
		return i
	}
	return -1
}

func (r *Registry) ForTable(table models.TableName) (Translator, bool) {
	t, ok := r.byTable[table]
	return t, ok
}

func (r *Registry) ForLegacyTable(name string) (Translator, bool) {
	t, ok := r.byLegacy[name]
	return t, ok
}

// LegacyTableNames maps local tables to their wire names, skipping unknown ones
func (r *Registry) LegacyTableNames(tables []models.TableName) []string {
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		if t, ok := r.byTable[table]; ok {
			names = append(names, t.LegacyTableName())
		}
	}
	return names
}

// FromBuffer translates a buffered inbound change. A nil record with a nil
// error means the change does not apply to this site and is skipped.
func (r *Registry) FromBuffer(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	t, ok := r.byLegacy[row.TableName]
	if !ok {
		return nil, nil
	}
	if row.Action == models.RowActionDelete {
		return t.TryTranslateFromDelete(row)
	}
	return t.TryTranslateFromUpsert(row)
}

// ToPush translates a local change for the remote server. row is nil for
// deletes and for rows removed since the change was logged; both push a delete.
func (r *Registry) ToPush(changelog *models.ChangelogRow, row models.SyncRow) (*PushRecord, error) {
	t, ok := r.byTable[changelog.TableName]
	if !ok {
		return nil, nil
	}
	if changelog.RowAction == models.RowActionDelete || row == nil {
		return t.TryTranslateToDelete(changelog)
	}
	return t.TryTranslateToUpsert(row, changelog)
}
