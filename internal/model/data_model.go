package model

import "sort"

// FieldEntry is one write to one field of a named object.
//
// Seqno is the log position of the write. CreatedAt is the seqno of the
// first write ever made to the object and never changes afterwards.
type FieldEntry struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Seqno     uint64 `json:"seqno"`
	CreatedAt uint64 `json:"createdAt"`
}

// Object maps field key to its latest entry. Objects are treated as
// immutable once stored; use With to derive a changed copy.
type Object map[string]FieldEntry

// Objects maps object name to object. Like Object, it is copy-on-write.
type Objects map[string]Object

// Seqno returns the overall sequence number of the object: the largest
// seqno among its fields, or 0 when it has none.
func (o Object) Seqno() uint64 {
	var max uint64
	for _, e := range o {
		if e.Seqno > max {
			max = e.Seqno
		}
	}
	return max
}

// CreatedAt returns the birth seqno of the object, or 0 when it has no fields.
func (o Object) CreatedAt() uint64 {
	for _, e := range o {
		return e.CreatedAt
	}
	return 0
}

// With returns a copy of o with the given entries written over it, in order.
func (o Object) With(entries ...FieldEntry) Object {
	out := make(Object, len(o)+len(entries))
	for k, e := range o {
		out[k] = e
	}
	for _, e := range entries {
		out[e.Key] = e
	}
	return out
}

// Entries returns the fields of o ordered by seqno.
func (o Object) Entries() []FieldEntry {
	out := make([]FieldEntry, 0, len(o))
	for _, e := range o {
		out = append(out, e)
	}
	SortBySeqno(out)
	return out
}

// Equal reports whether both objects hold the same entries field for field.
func (o Object) Equal(other Object) bool {
	if len(o) != len(other) {
		return false
	}
	for k, e := range o {
		if oe, ok := other[k]; !ok || oe != e {
			return false
		}
	}
	return true
}

// With returns a copy of m where name maps to obj. Other objects are shared.
func (m Objects) With(name string, obj Object) Objects {
	out := make(Objects, len(m)+1)
	for n, o := range m {
		out[n] = o
	}
	out[name] = obj
	return out
}

// Names returns the object names in lexicographic order.
func (m Objects) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Log returns every stored entry ordered by seqno. This is the sequence log
// as seen from the current state; superseded writes are not part of it.
func (m Objects) Log() []FieldEntry {
	var out []FieldEntry
	for _, o := range m {
		for _, e := range o {
			out = append(out, e)
		}
	}
	SortBySeqno(out)
	return out
}

// SortBySeqno sorts entries in place by ascending seqno.
func SortBySeqno(entries []FieldEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seqno < entries[j].Seqno })
}

// Group is the ordered run of entries sharing one object name.
type Group struct {
	Name    string
	Entries []FieldEntry
}

// GroupByName partitions entries by object name. Groups are returned in
// order of first appearance and keep the relative order of their entries.
func GroupByName(entries []FieldEntry) []Group {
	index := map[string]int{}
	var groups []Group
	for _, e := range entries {
		i, ok := index[e.Name]
		if !ok {
			i = len(groups)
			index[e.Name] = i
			groups = append(groups, Group{Name: e.Name})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}
