package model

import "testing"

func TestObjectSeqnoIsMaxFieldSeqno(t *testing.T) {
	obj := Object{
		"a": {Name: "fruit", Key: "a", Value: "x", Seqno: 4, CreatedAt: 1},
		"b": {Name: "fruit", Key: "b", Value: "y", Seqno: 9, CreatedAt: 1},
		"c": {Name: "fruit", Key: "c", Value: "z", Seqno: 1, CreatedAt: 1},
	}
	if got := obj.Seqno(); got != 9 {
		t.Fatalf("Seqno() = %d, want 9", got)
	}
	if got := obj.CreatedAt(); got != 1 {
		t.Fatalf("CreatedAt() = %d, want 1", got)
	}
	if got := (Object{}).Seqno(); got != 0 {
		t.Fatalf("empty Seqno() = %d, want 0", got)
	}
}

func TestObjectWithDoesNotMutateReceiver(t *testing.T) {
	orig := Object{"a": {Name: "fruit", Key: "a", Value: "x", Seqno: 1, CreatedAt: 1}}
	next := orig.With(FieldEntry{Name: "fruit", Key: "a", Value: "y", Seqno: 2, CreatedAt: 1})

	if orig["a"].Value != "x" {
		t.Fatalf("receiver mutated: got %q", orig["a"].Value)
	}
	if next["a"].Value != "y" || next["a"].Seqno != 2 {
		t.Fatalf("unexpected overwrite: %+v", next["a"])
	}
}

func TestObjectsWithSharesUntouchedObjects(t *testing.T) {
	fruit := Object{"a": {Name: "fruit", Key: "a", Value: "x", Seqno: 1, CreatedAt: 1}}
	objs := Objects{"fruit": fruit}
	tool := Object{"c": {Name: "tool", Key: "c", Value: "z", Seqno: 2, CreatedAt: 2}}

	next := objs.With("tool", tool)
	if _, ok := objs["tool"]; ok {
		t.Fatalf("receiver mutated")
	}
	if !next["fruit"].Equal(fruit) || !next["tool"].Equal(tool) {
		t.Fatalf("unexpected objects: %+v", next)
	}
	if names := next.Names(); len(names) != 2 || names[0] != "fruit" || names[1] != "tool" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestObjectsLogOrderedBySeqno(t *testing.T) {
	objs := Objects{
		"tool": {"c": {Name: "tool", Key: "c", Seqno: 2, CreatedAt: 2}},
		"fruit": {
			"a": {Name: "fruit", Key: "a", Seqno: 3, CreatedAt: 1},
			"b": {Name: "fruit", Key: "b", Seqno: 1, CreatedAt: 1},
		},
	}
	log := objs.Log()
	if len(log) != 3 {
		t.Fatalf("log length = %d, want 3", len(log))
	}
	for i, want := range []uint64{1, 2, 3} {
		if log[i].Seqno != want {
			t.Fatalf("log[%d].Seqno = %d, want %d", i, log[i].Seqno, want)
		}
	}
}

func TestGroupByNameKeepsFirstAppearanceAndFIFO(t *testing.T) {
	entries := []FieldEntry{
		{Name: "fruit", Key: "a", Seqno: 1},
		{Name: "tool", Key: "c", Seqno: 2},
		{Name: "fruit", Key: "b", Seqno: 3},
		{Name: "tool", Key: "d", Seqno: 4},
	}
	groups := GroupByName(entries)
	if len(groups) != 2 || groups[0].Name != "fruit" || groups[1].Name != "tool" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if groups[0].Entries[0].Seqno != 1 || groups[0].Entries[1].Seqno != 3 {
		t.Fatalf("fruit group out of order: %+v", groups[0].Entries)
	}
	if groups[1].Entries[0].Seqno != 2 || groups[1].Entries[1].Seqno != 4 {
		t.Fatalf("tool group out of order: %+v", groups[1].Entries)
	}
}

func TestParseCommandKind(t *testing.T) {
	for _, name := range []string{"put", "jump", "pull", "fetch", "apply"} {
		k, err := ParseCommandKind(name)
		if err != nil {
			t.Fatalf("ParseCommandKind(%q): %v", name, err)
		}
		if k.String() != name {
			t.Fatalf("round trip %q -> %q", name, k.String())
		}
	}
	if _, err := ParseCommandKind("sync"); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if CommandKind(42).Valid() {
		t.Fatalf("kind 42 must not be valid")
	}
}
