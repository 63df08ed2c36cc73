package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/history"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestResolve_TwoTracks(t *testing.T) {
	entries := []history.Entry{
		{EntityID: "E1", ChangedAt: t0, NewTrack: "X", NewValue: "A"},
		{EntityID: "E1", ChangedAt: t0.Add(time.Hour), NewTrack: "Y", NewValue: "B"},
	}

	state := history.Resolve(entries)

	assert.Equal(t, []string{"E1"}, state.Entities())
	assert.Equal(t, []string{"X", "Y"}, state.Tracks())

	v, ok := state.Get("E1", "X")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	v, ok = state.Get("E1", "Y")
	require.True(t, ok)
	assert.Equal(t, "B", v)
}

func TestResolve_OrderDependent(t *testing.T) {
	first := history.Entry{EntityID: "L1", ChangedAt: t0, NewTrack: "SDR Owner", NewValue: "005A", OldTrack: "Admin", OldValue: "005Z"}
	second := history.Entry{EntityID: "L1", ChangedAt: t0.Add(time.Minute), NewTrack: "SDR Owner", NewValue: "005B", OldTrack: "SDR Owner", OldValue: "005A"}

	chronological := history.Resolve([]history.Entry{first, second})
	reversed := history.Resolve([]history.Entry{second, first})

	got, _ := chronological.Get("L1", "SDR Owner")
	assert.Equal(t, "005A", got, "old value of the last entry wins when both labels match")

	got, _ = reversed.Get("L1", "SDR Owner")
	assert.Equal(t, "005A", got)

	// Reordering changes the outcome once the labels differ
	a := history.Entry{EntityID: "L2", ChangedAt: t0, NewTrack: "Sales Owner", NewValue: "005S1"}
	b := history.Entry{EntityID: "L2", ChangedAt: t0.Add(time.Minute), NewTrack: "Sales Owner", NewValue: "005S2"}

	forward, _ := history.Resolve([]history.Entry{a, b}).Get("L2", "Sales Owner")
	backward, _ := history.Resolve([]history.Entry{b, a}).Get("L2", "Sales Owner")
	assert.Equal(t, "005S2", forward)
	assert.Equal(t, "005S1", backward)
	assert.NotEqual(t, forward, backward)
}

func TestResolve_DoubleWrite(t *testing.T) {
	// An entry irrelevant to a track still overwrites it through its old value
	entries := []history.Entry{
		{EntityID: "L1", ChangedAt: t0, NewTrack: "SDR Owner", NewValue: "005A"},
		{EntityID: "L1", ChangedAt: t0.Add(time.Minute), NewTrack: "Sales Owner", NewValue: "005S", OldTrack: "SDR Owner", OldValue: "005X"},
	}

	state := history.Resolve(entries)

	sdr, _ := state.Get("L1", "SDR Owner")
	sales, _ := state.Get("L1", "Sales Owner")
	assert.Equal(t, "005X", sdr)
	assert.Equal(t, "005S", sales)
}

func TestResolve_NilStillWrites(t *testing.T) {
	entries := []history.Entry{
		{EntityID: "L1", ChangedAt: t0, NewTrack: "SDR Owner", NewValue: "005A"},
		{EntityID: "L1", ChangedAt: t0.Add(time.Minute), NewTrack: "Sales Owner", NewValue: "005S", OldTrack: "SDR Owner", OldValue: nil},
	}

	state := history.Resolve(entries)

	v, ok := state.Get("L1", "SDR Owner")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestResolve_EmptyTrackSkipped(t *testing.T) {
	entries := []history.Entry{
		{EntityID: "L1", ChangedAt: t0, NewTrack: "SDR Owner", NewValue: "005A", OldTrack: "", OldValue: "005Q"},
	}

	state := history.Resolve(entries)

	assert.Equal(t, []string{"SDR Owner"}, state.Tracks())
	_, ok := state.Get("L1", "")
	assert.False(t, ok)
}

func TestResolve_SingleEntryAndEmpty(t *testing.T) {
	state := history.Resolve(nil)
	assert.Empty(t, state.Entities())
	assert.Empty(t, state.Tracks())

	state = history.Resolve([]history.Entry{
		{EntityID: "L9", ChangedAt: t0, NewTrack: "Admin", NewValue: "005M", OldTrack: "SDR Owner", OldValue: "005A"},
	})
	assert.Equal(t, []string{"L9"}, state.Entities())
	assert.Equal(t, []string{"Admin", "SDR Owner"}, state.Tracks())
}

func TestState_Table(t *testing.T) {
	entries := []history.Entry{
		{EntityID: "L1", ChangedAt: t0, NewTrack: "SDR Owner", NewValue: "005A"},
		{EntityID: "L2", ChangedAt: t0, NewTrack: "Sales Owner", NewValue: "005S"},
	}

	tbl := history.Resolve(entries).Table("LeadId")

	assert.Equal(t, []string{"LeadId", "SDR Owner", "Sales Owner"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, domain.FlatRecord{"LeadId": "L1", "SDR Owner": "005A"}, tbl.Rows()[0])
	assert.Equal(t, domain.FlatRecord{"LeadId": "L2", "Sales Owner": "005S"}, tbl.Rows()[1])
	assert.Nil(t, tbl.Cell(0, "Sales Owner"))
}

func TestSortEntries(t *testing.T) {
	entries := []history.Entry{
		{EntityID: "L2", ChangedAt: t0, NewValue: "a"},
		{EntityID: "L1", ChangedAt: t0.Add(time.Hour), NewValue: "b"},
		{EntityID: "L1", ChangedAt: t0, NewValue: "c"},
		{EntityID: "L1", ChangedAt: t0, NewValue: "d"},
	}

	history.SortEntries(entries)

	var got []any
	for _, e := range entries {
		got = append(got, e.NewValue)
	}
	assert.Equal(t, []any{"c", "d", "b", "a"}, got)
}
