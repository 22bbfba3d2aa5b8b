package entity

import (
	"slices"
	"time"
)

// Changes maps a field name to the value it held before an update.
// A nullable field that was unset records an untyped nil.
type Changes map[string]any

// differ collects changes during ApplyAndDiff. A nil differ (initialize,
// ApplySilently) commits values without recording.
type differ struct {
	changes Changes
}

func newDiffer() *differ {
	return &differ{changes: Changes{}}
}

func (d *differ) record(name string, old any) {
	if d != nil {
		d.changes[name] = old
	}
}

func (d *differ) result() Changes {
	if d == nil {
		return nil
	}
	return d.changes
}

// set commits v into field, recording the old value when it differs
func set[T comparable](d *differ, name string, field *T, v T) bool {
	if *field == v {
		return false
	}
	d.record(name, *field)
	*field = v
	return true
}

// setNullable is the three-way comparison: nil/nil and equal values are no change
func setNullable[T comparable](d *differ, name string, field **T, v *T) bool {
	old := *field
	switch {
	case old == nil && v == nil:
		return false
	case old != nil && v != nil && *old == *v:
		return false
	}

	if old == nil {
		d.record(name, nil)
	} else {
		d.record(name, *old)
	}
	*field = v
	return true
}

// setSlice treats nil and empty as equal
func setSlice[T comparable](d *differ, name string, field *[]T, v []T) bool {
	if slices.Equal(*field, v) {
		return false
	}
	d.record(name, *field)
	*field = v
	return true
}

// setTime compares instants, not locations
func setTime(d *differ, name string, field *time.Time, v time.Time) bool {
	if field.Equal(v) {
		return false
	}
	d.record(name, *field)
	*field = v
	return true
}

func setNullableTime(d *differ, name string, field **time.Time, v *time.Time) bool {
	old := *field
	switch {
	case old == nil && v == nil:
		return false
	case old != nil && v != nil && old.Equal(*v):
		return false
	}

	if old == nil {
		d.record(name, nil)
	} else {
		d.record(name, *old)
	}
	*field = v
	return true
}
