package history

import (
	"sort"
	"strings"
	"time"

	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/table"
)

// Entry is one field change of an entity. NewTrack and OldTrack label the track
// each value belongs to and come from the reference join; empty means unknown.
type Entry struct {
	EntityID  string
	ChangedAt time.Time
	NewValue  any
	OldValue  any
	NewTrack  string
	OldTrack  string
}

// State maps each entity to the latest value seen per track
type State struct {
	entities []string
	tracks   []string
	seen     map[string]struct{}
	values   map[string]map[string]any
}

// Resolve replays entries in the given order. For every entry the new value is
// written to its track and then the old value to its track, so when both labels
// match the old value wins. Later writes overwrite earlier ones, nil included.
// Writes to an empty track label are skipped.
//
// Entries must be sorted by (EntityID, ChangedAt); see SortEntries. Unsorted
// input yields a state that reflects replay order, not chronology.
func Resolve(entries []Entry) *State {
	s := &State{
		seen:   make(map[string]struct{}),
		values: make(map[string]map[string]any),
	}

	for _, e := range entries {
		slots, ok := s.values[e.EntityID]
		if !ok {
			slots = make(map[string]any)
			s.values[e.EntityID] = slots
			s.entities = append(s.entities, e.EntityID)
		}

		s.write(slots, e.NewTrack, e.NewValue)
		s.write(slots, e.OldTrack, e.OldValue)
	}

	return s
}

func (s *State) write(slots map[string]any, track string, value any) {
	if track == "" {
		return
	}
	if _, ok := s.seen[track]; !ok {
		s.seen[track] = struct{}{}
		s.tracks = append(s.tracks, track)
	}
	slots[track] = value
}

// Entities returns entity IDs in first-seen order
func (s *State) Entities() []string {
	return append([]string(nil), s.entities...)
}

// Tracks returns every track label written, in first-seen order
func (s *State) Tracks() []string {
	return append([]string(nil), s.tracks...)
}

// Get returns the value of a track for an entity and whether it was ever written
func (s *State) Get(entityID, track string) (any, bool) {
	v, ok := s.values[entityID][track]
	return v, ok
}

// Table returns one row per entity, keyed by entityColumn, with a column per track.
// Tracks never written for an entity are absent from its row.
func (s *State) Table(entityColumn string) *table.Table {
	t := table.New(append([]string{entityColumn}, s.tracks...)...)
	for _, id := range s.entities {
		row := domain.FlatRecord{entityColumn: id}
		for track, v := range s.values[id] {
			row[track] = v
		}
		t.Append(row)
	}
	return t
}

// SortEntries sorts entries by EntityID, then ChangedAt, keeping server order for ties
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := strings.Compare(entries[i].EntityID, entries[j].EntityID); c != 0 {
			return c < 0
		}
		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
}
