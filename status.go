package tern

import (
	"context"
	"sort"
	"time"

	"github.com/denismitr/tern/v4/migration"
)

type StatusEntry struct {
	Version   migration.Version
	Key       string
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Unknown is an applied version no known migration declares
	Unknown bool
}

type Status struct {
	Current migration.Version
	Latest  migration.Version
	Pending int
	Entries []StatusEntry
}

func (s *Status) HasUnknown() bool {
	for _, e := range s.Entries {
		if e.Unknown {
			return true
		}
	}
	return false
}

// Status lists known and applied versions in ascending order. Unlike the
// other operations it does not fail on versions no migration declares.
func (m *Migrator) Status(ctx context.Context) (*Status, error) {
	if err := m.conn.EnsureStorageExists(ctx); err != nil {
		return nil, err
	}

	st, err := m.loadUnverified(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Current: migration.MaxVersion(st.applied),
		Latest:  st.registry.Latest(),
	}

	var entries []StatusEntry
	for _, mg := range st.registry.Migrations() {
		e := StatusEntry{Version: mg.Version, Key: mg.Key, Name: mg.Name}
		for _, v := range st.applied {
			if v.Equal(mg.Version) {
				e.Applied = true
				e.AppliedAt = v.MigratedAt
				break
			}
		}

		if !e.Applied {
			status.Pending++
		}
		entries = append(entries, e)
	}

	for _, v := range st.applied {
		if _, ok := st.registry.Get(v); !ok {
			entries = append(entries, StatusEntry{Version: v, Applied: true, AppliedAt: v.MigratedAt, Unknown: true})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Version.Less(entries[j].Version) })
	status.Entries = entries

	return status, nil
}
