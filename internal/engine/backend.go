package engine

import "seqsync/internal/model"

// FirstSeqno is the seqno assigned to the first write of a fresh Backend.
const FirstSeqno uint64 = 1

// Backend is the authoritative store and the only seqno generator.
// Methods never modify the receiver; they return the next Backend.
type Backend struct {
	Objects   model.Objects
	NextSeqno uint64
}

func NewBackend() Backend {
	return Backend{Objects: model.Objects{}, NextSeqno: FirstSeqno}
}

// Write stores value at (name, key) under the next seqno. The object's birth
// seqno is kept when it already has fields, otherwise the new seqno becomes it.
func (b Backend) Write(name, key, value string) (Backend, model.FieldEntry) {
	seqno := b.NextSeqno
	obj := b.Objects[name]
	createdAt := seqno
	if len(obj) > 0 {
		createdAt = obj.CreatedAt()
	}
	entry := model.FieldEntry{
		Name:      name,
		Key:       key,
		Value:     value,
		Seqno:     seqno,
		CreatedAt: createdAt,
	}
	return Backend{
		Objects:   b.Objects.With(name, obj.With(entry)),
		NextSeqno: seqno + 1,
	}, entry
}

// Object returns the current state of the named object.
func (b Backend) Object(name string) (model.Object, bool) {
	obj, ok := b.Objects[name]
	return obj, ok
}

// Log returns the stored entries with seqno >= since, in log order.
func (b Backend) Log(since uint64) []model.FieldEntry {
	all := b.Objects.Log()
	for i, e := range all {
		if e.Seqno >= since {
			return all[i:]
		}
	}
	return nil
}

// next finds the stored entry with the smallest seqno >= cursor.
func (b Backend) next(cursor uint64) (model.FieldEntry, bool) {
	var (
		found model.FieldEntry
		ok    bool
	)
	for _, obj := range b.Objects {
		for _, e := range obj {
			if e.Seqno >= cursor && (!ok || e.Seqno < found.Seqno) {
				found, ok = e, true
			}
		}
	}
	return found, ok
}
