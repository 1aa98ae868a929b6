package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"seqsync/internal/engine"
	"seqsync/internal/model"
)

func writeTrace(t *testing.T, cmds ...model.Command) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.log")
	appendSession(t, path, cmds...)
	return path
}

// appendSession runs one controller over path, as one server start would.
func appendSession(t *testing.T, path string, cmds ...model.Command) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	ctrl, cancel, err := engine.NewSyncController(context.Background(), engine.SyncControllerCfg{
		TracePath: path,
		Log:       logrus.NewEntry(l),
	})
	if err != nil {
		t.Fatalf("create sync controller: %v", err)
	}
	for _, cmd := range cmds {
		if _, _, err := ctrl.Dispatch(context.Background(), cmd); err != nil {
			t.Fatalf("dispatch %s: %v", cmd, err)
		}
	}
	cancel()
	<-ctrl.Done()
}

func TestDumpListsRecords(t *testing.T) {
	path := writeTrace(t, model.Put("fruit", "a", "x"), model.Pull())

	var out bytes.Buffer
	if err := mainInner([]string{"-trace", path}, &out); err != nil {
		t.Fatalf("tracedump: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	if lines[0] != "session 1" || !strings.Contains(lines[1], "put(fruit/a=x)") || !strings.Contains(lines[2], "pull()") {
		t.Fatalf("unexpected dump: %q", out.String())
	}
}

func TestDumpReplayPrintsFinalState(t *testing.T) {
	path := writeTrace(t,
		model.Put("fruit", "a", "x"),
		model.Put("fruit", "b", "y"),
		model.Pull(), model.Pull(), model.Fetch(), model.Apply(),
		model.Put("tool", "c", "z"),
		model.Pull(),
	)

	var out bytes.Buffer
	if err := mainInner([]string{"-trace", path, "-replay"}, &out); err != nil {
		t.Fatalf("tracedump: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"backend next=4",
		"started=1 next=4",
		"fruit seqno=2 created=1",
		"pending 3 tool/c=z",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("replay output missing %q:\n%s", want, got)
		}
	}
}

func TestDumpRequiresPath(t *testing.T) {
	t.Setenv("SYNC_TRACE_PATH", "")
	if err := mainInner(nil, io.Discard); err == nil {
		t.Fatalf("expected error without a trace path")
	}
}

func TestDumpReplaysEachSessionFromFreshState(t *testing.T) {
	path := writeTrace(t, model.Put("fruit", "a", "x"))
	appendSession(t, path, model.Put("tool", "c", "z"))

	var out bytes.Buffer
	if err := mainInner([]string{"-trace", path, "-replay"}, &out); err != nil {
		t.Fatalf("tracedump: %v", err)
	}
	got := out.String()
	second := strings.Index(got, "session 2")
	if !strings.HasPrefix(got, "session 1") || second < 0 {
		t.Fatalf("sessions not separated:\n%s", got)
	}
	tail := got[second:]
	if !strings.Contains(tail, "backend next=2") || !strings.Contains(tail, "tool seqno=1") {
		t.Fatalf("second session replay wrong:\n%s", tail)
	}
	if strings.Contains(tail, "fruit") {
		t.Fatalf("second session replay carries the first session's writes:\n%s", tail)
	}
}
