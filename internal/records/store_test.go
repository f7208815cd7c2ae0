package records

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/sheetdash/internal/charts"
)

func sampleRecords(t *testing.T) []Record {
	t.Helper()
	var recs []Record
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":1,"name":"Acme","revenue":12000},
		{"id":2,"name":"Globex","revenue":8000},
		{"id":3,"name":"Initech","revenue":20000}
	]`), &recs))
	return recs
}

func keySets(s *Store) [][]string {
	out := make([][]string, 0, s.Len())
	for _, r := range s.Records() {
		out = append(out, r.Keys())
	}
	return out
}

func TestAddColumnKeepsKeySetsIdentical(t *testing.T) {
	s := NewStore()
	s.Replace(sampleRecords(t))

	for _, name := range []string{"country", "", "  ", "name", "id", "employees", "country", " profit "} {
		s.AddColumn(name)
		sets := keySets(s)
		for _, ks := range sets[1:] {
			assert.Equal(t, sets[0], ks, "after AddColumn(%q)", name)
		}
	}
	assert.Equal(t, []string{"name", "revenue", "country", "employees", "profit"}, s.Columns())
	for _, r := range s.Records() {
		assert.Equal(t, "", r.String("country"))
	}
}

func TestAddColumnNoOps(t *testing.T) {
	s := NewStore()
	assert.False(t, s.AddColumn("x"), "empty collection")

	s.Replace(sampleRecords(t))
	assert.False(t, s.AddColumn(""))
	assert.False(t, s.AddColumn("name"))
	assert.False(t, s.AddColumn(IDKey))
	assert.True(t, s.AddColumn("country"))
	assert.False(t, s.AddColumn("country"))
}

func TestAddColumnOnlyChecksFirstRecord(t *testing.T) {
	s := NewStore()
	recs := sampleRecords(t)
	recs[1].Set("country", "DE")
	s.Replace(recs)

	require.True(t, s.AddColumn("country"))
	r, _ := s.Find("2")
	assert.Equal(t, "", r.String("country"))
}

func TestEditCursor(t *testing.T) {
	s := NewStore()
	s.Replace(sampleRecords(t))

	_, ok := s.Editing()
	assert.False(t, ok)

	require.NoError(t, s.StartEdit("1"))
	require.NoError(t, s.SetField("1", "name", "Acme Corp"))
	require.NoError(t, s.StartEdit("2"))

	id, ok := s.Editing()
	assert.True(t, ok)
	assert.Equal(t, "2", id)

	r, _ := s.Find("1")
	assert.Equal(t, "Acme Corp", r.String("name"), "typed values stay in memory after the cursor moves")

	_, err := s.CommitEdit("1")
	assert.ErrorIs(t, err, ErrNotEditing)

	assert.ErrorIs(t, s.StartEdit("99"), ErrUnknownRecord)
	assert.ErrorIs(t, s.SetField("2", IDKey, "5"), ErrReservedField)
}

func TestCancelEditCommitsNothing(t *testing.T) {
	s := NewStore()
	s.Replace(sampleRecords(t))

	require.NoError(t, s.StartEdit("3"))
	require.NoError(t, s.SetField("3", "revenue", "1"))
	s.CancelEdit()

	_, ok := s.Editing()
	assert.False(t, ok)
	_, err := s.CommitEdit("3")
	assert.ErrorIs(t, err, ErrNotEditing)
}

func TestCommitEditSnapshotAndFinish(t *testing.T) {
	s := NewStore()
	s.Replace(sampleRecords(t))
	require.NoError(t, s.StartEdit("2"))
	require.NoError(t, s.SetField("2", "revenue", "9500"))

	rec, err := s.CommitEdit("2")
	require.NoError(t, err)
	assert.Equal(t, "9500", rec.String("revenue"))
	assert.True(t, s.IsEditing("2"), "cursor stays until the save succeeds")

	require.NoError(t, s.SetField("2", "revenue", "1"))
	assert.Equal(t, "9500", rec.String("revenue"), "snapshot is detached")

	s.FinishEdit("1")
	assert.True(t, s.IsEditing("2"))
	s.FinishEdit("2")
	assert.False(t, s.IsEditing("2"))
}

func TestApplyRefreshDropsStaleTokens(t *testing.T) {
	s := NewStore()
	first := s.BeginRefresh()
	second := s.BeginRefresh()

	newer := sampleRecords(t)
	older := newer[:1]

	assert.True(t, s.ApplyRefresh(second, newer))
	assert.False(t, s.ApplyRefresh(first, older))
	assert.Equal(t, 3, s.Len())
}

func TestAppendKeepsReceiptOrder(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"live-1", "live-1", "live-0"} {
		r := New(id)
		r.Set("value", json.Number("42"))
		s.Append(r)
	}
	require.Equal(t, 3, s.Len())
	r, _ := s.At(2)
	assert.Equal(t, "live-0", r.ID)
}

func TestChartSelectionReplacesPayload(t *testing.T) {
	s := NewStore()
	assert.Equal(t, charts.KindNone, s.ChartKind())

	s.SetChart(charts.Bar([]charts.RevenueRow{{Name: "A", Revenue: 5}}))
	assert.Equal(t, charts.KindBar, s.ChartKind())

	s.SetChart(charts.Pie([]charts.CountryRow{{Country: "US", Count: 3}}))
	assert.Equal(t, charts.KindPie, s.ChartKind())
	_, isBar := s.Chart().(charts.BarSeries)
	assert.False(t, isBar)

	s.SetChart(nil)
	assert.Equal(t, charts.KindNone, s.ChartKind())
}
