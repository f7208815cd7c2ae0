package records

import (
	"errors"
	"strings"

	"github.com/keilerkonzept/sheetdash/internal/charts"
)

var (
	ErrNotEditing    = errors.New("record is not being edited")
	ErrUnknownRecord = errors.New("unknown record")
	ErrReservedField = errors.New("field is reserved")
)

// Store is the dashboard's view of the backend: the ordered records, the edit
// cursor, the chart selection and the generation flag. It is owned by a
// single goroutine and does no locking.
type Store struct {
	records []Record

	editing   string
	isEditing bool

	chart      charts.Series
	generating bool

	refreshSeq uint64
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Len() int { return len(s.records) }

// Records returns the live slice. Callers must not keep it across updates.
func (s *Store) Records() []Record { return s.records }

// At returns the record at index i.
func (s *Store) At(i int) (Record, bool) {
	if i < 0 || i >= len(s.records) {
		return Record{}, false
	}
	return s.records[i], true
}

func (s *Store) Find(id string) (Record, bool) {
	if i := s.index(id); i >= 0 {
		return s.records[i], true
	}
	return Record{}, false
}

func (s *Store) index(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// Columns are the keys of the first record.
func (s *Store) Columns() []string {
	if len(s.records) == 0 {
		return nil
	}
	return s.records[0].Keys()
}

// Replace swaps in a full collection fetched from the backend.
func (s *Store) Replace(recs []Record) {
	s.records = recs
}

// Append adds a record at the end, as received.
func (s *Store) Append(rec Record) {
	s.records = append(s.records, rec)
}

// BeginRefresh issues a token for a list request. Only the most recent token
// is accepted by ApplyRefresh.
func (s *Store) BeginRefresh() uint64 {
	s.refreshSeq++
	return s.refreshSeq
}

// ApplyRefresh replaces the collection if token is the latest one issued and
// reports whether it did.
func (s *Store) ApplyRefresh(token uint64, recs []Record) bool {
	if token != s.refreshSeq {
		return false
	}
	s.Replace(recs)
	return true
}

// AddColumn adds name with an empty value to every record. It is a no-op for
// blank names, the identifier key, and names the first record already has.
func (s *Store) AddColumn(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == IDKey || len(s.records) == 0 {
		return false
	}
	if s.records[0].Has(name) {
		return false
	}
	for i := range s.records {
		s.records[i].Set(name, "")
	}
	return true
}

// StartEdit moves the edit cursor to id. Any earlier cursor is dropped;
// values typed into that record stay in memory.
func (s *Store) StartEdit(id string) error {
	if s.index(id) < 0 {
		return ErrUnknownRecord
	}
	s.editing, s.isEditing = id, true
	return nil
}

func (s *Store) Editing() (string, bool) {
	return s.editing, s.isEditing
}

func (s *Store) IsEditing(id string) bool {
	return s.isEditing && s.editing == id
}

// SetField writes a value into the in-memory record. Nothing is sent to the
// backend until the edit is committed.
func (s *Store) SetField(id, key string, value any) error {
	if key == IDKey {
		return ErrReservedField
	}
	i := s.index(id)
	if i < 0 {
		return ErrUnknownRecord
	}
	s.records[i].Set(key, value)
	return nil
}

// CommitEdit returns a snapshot of the record under the cursor for sending to
// the backend. The cursor stays set until FinishEdit confirms the save.
func (s *Store) CommitEdit(id string) (Record, error) {
	if !s.IsEditing(id) {
		return Record{}, ErrNotEditing
	}
	rec, ok := s.Find(id)
	if !ok {
		return Record{}, ErrUnknownRecord
	}
	return rec.Clone(), nil
}

// FinishEdit clears the cursor after a successful save of id. A cursor that
// has since moved to another record is left alone.
func (s *Store) FinishEdit(id string) {
	if s.IsEditing(id) {
		s.CancelEdit()
	}
}

// CancelEdit clears the cursor without committing anything.
func (s *Store) CancelEdit() {
	s.editing, s.isEditing = "", false
}

// SetChart replaces the chart selection. A nil series selects none.
func (s *Store) SetChart(series charts.Series) {
	s.chart = series
}

func (s *Store) Chart() charts.Series { return s.chart }

func (s *Store) ChartKind() charts.Kind {
	if s.chart == nil {
		return charts.KindNone
	}
	return s.chart.Kind()
}

func (s *Store) SetGenerating(v bool) { s.generating = v }
func (s *Store) Generating() bool     { return s.generating }
