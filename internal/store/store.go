// Package store is an in-process document store. Each table holds records of
// one type keyed by an integer id drawn from a sequence shared by every table
// of the same Store.
package store

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConflict is returned by InsertUnique when an existing record collides
// with the one being inserted.
var ErrConflict = errors.New("store: unique constraint violated")

// Document is implemented by every record kept in a Table.
type Document interface {
	DocumentID() uint
	AssignID(id uint)
	CreatedTime() time.Time
	SetCreatedAt(t time.Time)
	SetUpdatedAt(t time.Time)
}

// Pointer constrains P to *T implementing Document.
type Pointer[T any] interface {
	*T
	Document
}

// Store owns the id sequence and clock shared by its tables.
type Store struct {
	seq atomic.Uint64

	mu     sync.RWMutex
	now    func() time.Time
	tables map[string]sized
}

type sized interface {
	Len() int
}

// New creates an empty store. Ids start at 1.
func New() *Store {
	return &Store{
		now:    time.Now,
		tables: make(map[string]sized),
	}
}

// SetClock replaces the time source used for createdAt and updatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Stats returns the number of records per table.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int, len(s.tables))
	for name, t := range s.tables {
		stats[name] = t.Len()
	}
	return stats
}

func (s *Store) nextID() uint {
	return uint(s.seq.Add(1))
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) register(name string, t sized) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = t
}

// Table is a keyed collection of T. Values go in and come out as copies, so
// mutating a returned record never changes what is stored.
type Table[T any, P Pointer[T]] struct {
	name  string
	store *Store

	mu   sync.RWMutex
	rows map[uint]T
}

// NewTable registers a table named name on s.
func NewTable[T any, P Pointer[T]](s *Store, name string) *Table[T, P] {
	t := &Table[T, P]{
		name:  name,
		store: s,
		rows:  make(map[uint]T),
	}
	s.register(name, t)
	return t
}

// Name returns the table name.
func (t *Table[T, P]) Name() string {
	return t.name
}

// Insert assigns the next id and both timestamps, then stores a copy of rec.
func (t *Table[T, P]) Insert(rec T) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(rec)
}

// InsertUnique inserts rec unless conflicts reports true for an existing
// record. The check and the insert happen under the same lock.
func (t *Table[T, P]) InsertUnique(rec T, conflicts func(existing *T) bool) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.rows {
		row := t.rows[id]
		if conflicts(&row) {
			var zero T
			return zero, ErrConflict
		}
	}
	return t.insertLocked(rec), nil
}

func (t *Table[T, P]) insertLocked(rec T) T {
	rec = cloneOf[T, P](rec)
	now := t.store.clock()

	p := P(&rec)
	p.AssignID(t.store.nextID())
	p.SetCreatedAt(now)
	p.SetUpdatedAt(now)

	t.rows[p.DocumentID()] = rec
	return cloneOf[T, P](rec)
}

// Get returns the record with the given id.
func (t *Table[T, P]) Get(id uint) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	return cloneOf[T, P](row), true
}

// Find returns every record for which match reports true, ordered by id.
// A nil match selects everything.
func (t *Table[T, P]) Find(match func(*T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := t.sortedIDsLocked()
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		row := t.rows[id]
		if match == nil || match(&row) {
			out = append(out, cloneOf[T, P](row))
		}
	}
	return out
}

// First returns the matching record with the lowest id.
func (t *Table[T, P]) First(match func(*T) bool) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, id := range t.sortedIDsLocked() {
		row := t.rows[id]
		if match == nil || match(&row) {
			return cloneOf[T, P](row), true
		}
	}
	var zero T
	return zero, false
}

// Count returns how many records match.
func (t *Table[T, P]) Count(match func(*T) bool) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if match == nil {
		return len(t.rows)
	}
	n := 0
	for id := range t.rows {
		row := t.rows[id]
		if match(&row) {
			n++
		}
	}
	return n
}

// Update applies patch to the stored record and refreshes updatedAt. The id
// and createdAt survive whatever patch does. Reports false if id is absent.
func (t *Table[T, P]) Update(id uint, patch func(*T)) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	row = cloneOf[T, P](row)
	created := P(&row).CreatedTime()
	patch(&row)
	return t.storeLocked(id, created, row), true
}

// Replace overwrites the stored record with rec, keeping id and createdAt.
func (t *Table[T, P]) Replace(id uint, rec T) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	created := P(&row).CreatedTime()
	return t.storeLocked(id, created, cloneOf[T, P](rec)), true
}

// ReplaceUnique is Replace with the same conflict check as InsertUnique.
// The record being replaced is never passed to conflicts.
func (t *Table[T, P]) ReplaceUnique(id uint, rec T, conflicts func(existing *T) bool) (T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false, nil
	}
	for otherID := range t.rows {
		if otherID == id {
			continue
		}
		other := t.rows[otherID]
		if conflicts(&other) {
			var zero T
			return zero, true, ErrConflict
		}
	}
	created := P(&row).CreatedTime()
	return t.storeLocked(id, created, cloneOf[T, P](rec)), true, nil
}

// UpdateUnique is Update with a uniqueness check against every other
// record. conflicts sees the patched candidate and one existing record.
func (t *Table[T, P]) UpdateUnique(id uint, patch func(*T), conflicts func(candidate, existing *T) bool) (T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false, nil
	}
	row = cloneOf[T, P](row)
	created := P(&row).CreatedTime()
	patch(&row)
	for otherID := range t.rows {
		if otherID == id {
			continue
		}
		other := t.rows[otherID]
		if conflicts(&row, &other) {
			var zero T
			return zero, true, ErrConflict
		}
	}
	return t.storeLocked(id, created, row), true, nil
}

func (t *Table[T, P]) storeLocked(id uint, created time.Time, row T) T {
	p := P(&row)
	p.AssignID(id)
	p.SetCreatedAt(created)
	p.SetUpdatedAt(t.store.clock())
	t.rows[id] = row
	return cloneOf[T, P](row)
}

// Delete removes and returns the record with the given id.
func (t *Table[T, P]) Delete(id uint) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(t.rows, id)
	return row, true
}

// Len returns the number of stored records.
func (t *Table[T, P]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Average returns the mean of value over matching records that yield one,
// together with the number of values. The mean of nothing is 0.
func (t *Table[T, P]) Average(match func(*T) bool, value func(*T) (float64, bool)) (float64, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sum float64
	n := 0
	for id := range t.rows {
		row := t.rows[id]
		if match != nil && !match(&row) {
			continue
		}
		if v, ok := value(&row); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// GroupCount counts matching records per key. Records for which key reports
// false are skipped. Groups come back ordered by key.
func (t *Table[T, P]) GroupCount(match func(*T) bool, key func(*T) (string, bool)) []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int64)
	for id := range t.rows {
		row := t.rows[id]
		if match != nil && !match(&row) {
			continue
		}
		if k, ok := key(&row); ok {
			counts[k]++
		}
	}

	groups := make([]Group, 0, len(counts))
	for k, c := range counts {
		groups = append(groups, Group{Key: k, Count: c})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

func (t *Table[T, P]) sortedIDsLocked() []uint {
	ids := make([]uint, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Group is one bucket of a GroupCount.
type Group struct {
	Key   string
	Count int64
}

// TopGroups orders groups by count, highest first when desc is set, with
// ties broken by key. A positive limit truncates the result.
func TopGroups(groups []Group, desc bool, limit int) []Group {
	out := make([]Group, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			if desc {
				return out[i].Count > out[j].Count
			}
			return out[i].Count < out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Paginate returns rows[skip:skip+limit], clamped to the slice. A negative
// limit returns everything after skip.
func Paginate[T any](rows []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit >= 0 && skip+limit < end {
		end = skip + limit
	}
	return rows[skip:end]
}

// ParseID parses a path identifier. Anything that is not a positive integer
// is reported as invalid so callers can treat it as not found.
func ParseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func cloneOf[T any, P Pointer[T]](v T) T {
	if c, ok := any(P(&v)).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return v
}
