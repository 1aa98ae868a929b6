package engine

import (
	"github.com/google/uuid"

	"seqsync/internal/model"
)

// Client is a partial, possibly stale replica of the Backend.
//
// StartedSeqno is the epoch boundary: entries born before it may only be
// applied onto a snapshot that is at least that fresh. NextSeqno is the pull
// cursor. Pending holds pulled entries in seqno order that have not been
// merged yet. Like Backend, every method returns the next Client.
type Client struct {
	ReplicaID    uuid.UUID
	Objects      model.Objects
	StartedSeqno uint64
	NextSeqno    uint64
	Pending      []model.FieldEntry

	// seqnos of pending entries that failed the last Apply
	stuck map[uint64]struct{}
}

// ApplyResult counts what a single Apply did.
type ApplyResult struct {
	Applied int
	Stuck   int
}

// NewClient returns an empty replica positioned at the start of the log.
func NewClient() Client {
	return Client{
		ReplicaID:    uuid.New(),
		Objects:      model.Objects{},
		StartedSeqno: FirstSeqno,
		NextSeqno:    FirstSeqno,
	}
}

// IsStuck reports whether the pending entry with the given seqno failed the
// freshness check on the last Apply.
func (c Client) IsStuck(seqno uint64) bool {
	_, ok := c.stuck[seqno]
	return ok
}

// Pull moves the next unseen log entry into pending. At the head of the log
// it returns c unchanged and false.
func (c Client) Pull(b Backend) (Client, model.FieldEntry, bool) {
	entry, ok := b.next(c.NextSeqno)
	if !ok {
		return c, model.FieldEntry{}, false
	}
	pending := make([]model.FieldEntry, len(c.Pending), len(c.Pending)+1)
	copy(pending, c.Pending)
	c.Pending = append(pending, entry)
	c.NextSeqno = entry.Seqno + 1
	return c, entry, true
}

// Fetch replaces the local copy of every object referenced by a pending
// entry with the Backend's current object. It returns the fetched names.
func (c Client) Fetch(b Backend) (Client, []string) {
	var fetched []string
	objects := c.Objects
	for _, g := range model.GroupByName(c.Pending) {
		obj, ok := b.Object(g.Name)
		if !ok {
			continue
		}
		objects = objects.With(g.Name, obj)
		fetched = append(fetched, g.Name)
	}
	c.Objects = objects
	return c, fetched
}

// Apply merges pending entries, one object at a time. A group is merged when
// the local snapshot is at least as new as the epoch, or when the object was
// born inside the epoch; otherwise it stays pending.
func (c Client) Apply() (Client, ApplyResult) {
	var (
		res     ApplyResult
		stuck   []model.FieldEntry
		objects = c.Objects
	)
	for _, g := range model.GroupByName(c.Pending) {
		if obj, ok := objects[g.Name]; ok && obj.Seqno() >= c.StartedSeqno {
			objects = objects.With(g.Name, obj.With(g.Entries...))
			res.Applied += len(g.Entries)
			continue
		}
		if bornInEpoch(g.Entries, c.StartedSeqno) {
			objects = objects.With(g.Name, model.Object{}.With(g.Entries...))
			res.Applied += len(g.Entries)
			continue
		}
		stuck = append(stuck, g.Entries...)
	}

	res.Stuck = len(stuck)
	c.Objects = objects
	c.Pending = stuck
	c.stuck = make(map[uint64]struct{}, len(stuck))
	for _, e := range stuck {
		c.stuck[e.Seqno] = struct{}{}
	}
	return c, res
}

// Jump abandons catch-up: the epoch and the cursor move to the log head and
// pending is dropped. It returns the number of discarded entries.
func (c Client) Jump(b Backend) (Client, int) {
	discarded := len(c.Pending)
	c.StartedSeqno = b.NextSeqno
	c.NextSeqno = b.NextSeqno
	c.Pending = nil
	c.stuck = nil
	return c, discarded
}

func bornInEpoch(entries []model.FieldEntry, started uint64) bool {
	for _, e := range entries {
		if e.CreatedAt < started {
			return false
		}
	}
	return true
}
