package record

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("record not found")

// Rejection describes a patch that was not applied to one record.
type Rejection struct {
	ID  int
	Err error
}

// PatchResult reports the outcome of ApplyPatch.
type PatchResult struct {
	Updated  []int
	Missing  []int
	Rejected []Rejection
}

func (r PatchResult) Err() error {
	if len(r.Rejected) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Rejected))
	for _, rej := range r.Rejected {
		errs = append(errs, rej.Err)
	}
	return errors.Join(errs...)
}

// Store is the single-writer collection of records for one loaded file.
// All mutation goes through id-keyed patches under the store lock.
type Store struct {
	mu      sync.RWMutex
	records []Record
	index   map[int]int
	dropped int
}

func NewStore(records []Record) *Store {
	s := &Store{}
	s.Load(records)
	return s
}

// Load replaces the whole collection. Records whose id was already seen are
// dropped; the number dropped is returned.
func (s *Store) Load(records []Record) int {
	next := make([]Record, 0, len(records))
	index := make(map[int]int, len(records))
	dropped := 0
	for _, r := range records {
		if _, dup := index[r.ID]; dup {
			dropped++
			continue
		}
		if r.Status == "" {
			r.Status = StatusPending
		}
		index[r.ID] = len(next)
		next = append(next, r)
	}

	s.mu.Lock()
	s.records = next
	s.index = index
	s.dropped = dropped
	s.mu.Unlock()
	return dropped
}

// Dropped is the number of duplicate ids discarded by the last Load.
func (s *Store) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of all records in file order.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

func (s *Store) Get(id int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Select returns copies of the records with the given ids, in the order given.
// Unknown ids are skipped.
func (s *Store) Select(ids []int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]Record, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			ret = append(ret, s.records[i])
		}
	}
	return ret
}

// ApplyPatch runs update on a copy of each listed record and stores the copy
// when it keeps the record valid. The id, times and original text cannot be
// changed through a patch.
func (s *Store) ApplyPatch(ids []int, update func(*Record)) PatchResult {
	var res PatchResult

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		i, ok := s.index[id]
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		current := s.records[i]
		next := current
		update(&next)

		if err := checkPatch(current, next); err != nil {
			res.Rejected = append(res.Rejected, Rejection{ID: id, Err: err})
			continue
		}
		s.records[i] = next
		res.Updated = append(res.Updated, id)
	}
	return res
}

func checkPatch(current, next Record) error {
	if next.ID != current.ID ||
		next.StartTime != current.StartTime ||
		next.EndTime != current.EndTime ||
		next.OriginalText != current.OriginalText {
		return fmt.Errorf("record %d: immutable field changed", current.ID)
	}
	if current.ContextSuggestion != "" && next.ContextSuggestion != current.ContextSuggestion {
		return fmt.Errorf("record %d: context suggestion already set", current.ID)
	}
	if current.IsContextApplied && !next.IsContextApplied {
		return fmt.Errorf("record %d: applied suggestion cannot be withdrawn", current.ID)
	}
	if next.Status != current.Status && !current.Status.CanTransition(next.Status) {
		return fmt.Errorf("record %d: invalid transition %s -> %s", current.ID, current.Status, next.Status)
	}
	return next.validate()
}

// ApplySuggestion marks the record's suggestion as applied. Records without a
// suggestion are left untouched and changed is false.
func (s *Store) ApplySuggestion(id int) (rec Record, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Record{}, false, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	current := s.records[i]
	if current.ContextSuggestion == "" || current.IsContextApplied {
		return current, false, nil
	}
	current.IsContextApplied = true
	s.records[i] = current
	return current, true, nil
}

// BeginRun resets every record to pending for a new explicit run. Applied
// suggestions survive the reset; unapplied ones are cleared so the next context
// check can set them again.
func (s *Store) BeginRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		r := &s.records[i]
		if !r.IsContextApplied {
			r.ContextSuggestion = ""
		}
		r.Status = StatusPending
		r.TranslatedText = ""
		r.ModelUsed = ""
		r.ErrorMessage = ""
	}
}

// Counts tallies records per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make(map[Status]int, len(Statuses))
	for _, r := range s.records {
		ret[r.Status]++
	}
	return ret
}
