// Package ordered keeps position-ranked membership lists (roles in a guild,
// channels in a category) in a strict total order without re-sorting.
package ordered

import (
	"errors"
	"slices"
	"sort"
)

var (
	// ErrNotMember means the caller's view of membership diverged from the list
	ErrNotMember = errors.New("ordered: entity is not a member")
	ErrDuplicate = errors.New("ordered: entity is already a member")
)

// Rank orders members: Group first, then Position, ties broken by ascending ID
type Rank struct {
	Group    int
	Position int
	ID       uint64
}

// Less is the list comparator
func (r Rank) Less(other Rank) bool {
	if r.Group != other.Group {
		return r.Group < other.Group
	}
	if r.Position != other.Position {
		return r.Position < other.Position
	}
	return r.ID < other.ID
}

type entry[T comparable] struct {
	item T
	rank Rank
}

// List is a sorted, non-owning sequence of entities of a single kind.
// It remembers the rank each member was inserted with, so members can be found
// and relocated even after their own position field has moved on.
type List[T comparable] struct {
	entries []entry[T]
}

func New[T comparable]() *List[T] {
	return &List[T]{}
}

func (l *List[T]) Len() int {
	return len(l.entries)
}

func (l *List[T]) At(i int) T {
	return l.entries[i].item
}

// Items returns a snapshot in list order
func (l *List[T]) Items() []T {
	items := make([]T, len(l.entries))
	for i, e := range l.entries {
		items[i] = e.item
	}
	return items
}

// RankOf returns the rank item was inserted with
func (l *List[T]) RankOf(item T) (Rank, bool) {
	i := l.index(item)
	if i < 0 {
		return Rank{}, false
	}
	return l.entries[i].rank, true
}

func (l *List[T]) Contains(item T) bool {
	return l.index(item) >= 0
}

// Index returns the list position of item or -1
func (l *List[T]) Index(item T) int {
	return l.index(item)
}

// Append inserts item at the slot its rank dictates
func (l *List[T]) Append(item T, rank Rank) error {
	if l.index(item) >= 0 {
		return ErrDuplicate
	}
	l.insert(item, rank)
	return nil
}

// AppendUnchecked pushes item to the tail.
// The caller asserts rank sorts after every current member (bulk loads of
// pre-sorted data); no validation is done.
func (l *List[T]) AppendUnchecked(item T, rank Rank) {
	l.entries = append(l.entries, entry[T]{item: item, rank: rank})
}

// Remove drops item from the list
func (l *List[T]) Remove(item T) error {
	i := l.index(item)
	if i < 0 {
		return ErrNotMember
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return nil
}

// Switch relocates item to a new position within its group.
// Every other member keeps its relative order.
func (l *List[T]) Switch(item T, position int) error {
	i := l.index(item)
	if i < 0 {
		return ErrNotMember
	}
	rank := l.entries[i].rank
	if rank.Position == position {
		return nil
	}
	rank.Position = position
	l.entries = slices.Delete(l.entries, i, i+1)
	l.insert(item, rank)
	return nil
}

// Move relocates item under a completely new rank (group changes)
func (l *List[T]) Move(item T, rank Rank) error {
	if err := l.Remove(item); err != nil {
		return err
	}
	l.insert(item, rank)
	return nil
}

// Clear drops every member
func (l *List[T]) Clear() {
	clear(l.entries)
	l.entries = l.entries[:0]
}

func (l *List[T]) insert(item T, rank Rank) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return rank.Less(l.entries[i].rank)
	})
	var zero entry[T]
	l.entries = append(l.entries, zero)
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry[T]{item: item, rank: rank}
}

// index does a linear identity scan; lists hold at most a few hundred members
func (l *List[T]) index(item T) int {
	for i := range l.entries {
		if l.entries[i].item == item {
			return i
		}
	}
	return -1
}
