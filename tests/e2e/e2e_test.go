package e2e

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"
)

func setup(t *testing.T) (*Client, context.Context) {
	t.Helper()
	sut := startSystemUnderTest(t)
	t.Cleanup(sut.Close)
	return NewClient(sut.BaseURL, nil), testContext(t)
}

func mustPut(t *testing.T, ctx context.Context, c *Client, namespace, key, value string) CommandResult {
	t.Helper()
	res, err := c.Put(ctx, namespace, key, value)
	if err != nil {
		t.Fatalf("put %s/%s=%s: %v", namespace, key, value, err)
	}
	return res
}

func mustRun(t *testing.T, ctx context.Context, c *Client, names ...string) CommandResult {
	t.Helper()
	var res CommandResult
	for _, name := range names {
		var err error
		if res, err = c.Command(ctx, name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	return res
}

func mustState(t *testing.T, ctx context.Context, c *Client) State {
	t.Helper()
	s, err := c.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return s
}

func TestFruitRoundTrip(t *testing.T) {
	client, ctx := setup(t)

	mustPut(t, ctx, client, "fruit", "a", "x")
	mustPut(t, ctx, client, "fruit", "b", "y")
	mustRun(t, ctx, client, "pull", "pull", "fetch")
	res := mustRun(t, ctx, client, "apply")
	if res.Outcome.Applied != 2 || res.Outcome.Stuck != 0 {
		t.Fatalf("apply outcome = %+v", res.Outcome)
	}

	s := mustState(t, ctx, client)
	if !reflect.DeepEqual(s.Client.Objects["fruit"], s.Backend.Objects["fruit"]) {
		t.Fatalf("client fruit %+v != backend fruit %+v", s.Client.Objects["fruit"], s.Backend.Objects["fruit"])
	}
	if len(s.Client.Pending) != 0 {
		t.Fatalf("pending not drained: %+v", s.Client.Pending)
	}
}

func TestObjectBornAfterJumpAppliesWithoutFetch(t *testing.T) {
	client, ctx := setup(t)

	mustPut(t, ctx, client, "fruit", "a", "x")
	mustRun(t, ctx, client, "jump")
	if _, err := client.Submit(ctx, "tool/c=z"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := mustRun(t, ctx, client, "pull", "apply")
	if res.Outcome.Applied != 1 {
		t.Fatalf("apply outcome = %+v", res.Outcome)
	}

	s := mustState(t, ctx, client)
	tool, ok := s.Client.Objects["tool"]
	if !ok || len(tool.Fields) != 1 || tool.Fields[0].Value != "z" {
		t.Fatalf("client tool = %+v", s.Client.Objects)
	}
	if _, ok := s.Client.Objects["fruit"]; ok {
		t.Fatalf("fruit replicated although it was written before the jump")
	}
}

func TestJumpSkipsEarlierWrites(t *testing.T) {
	client, ctx := setup(t)

	mustPut(t, ctx, client, "fruit", "a", "x")
	jump := mustRun(t, ctx, client, "jump")
	if jump.State.Client.StartedSeqno != 2 || jump.State.Client.NextSeqno != 2 {
		t.Fatalf("jump state = %+v", jump.State.Client)
	}
	if pull := mustRun(t, ctx, client, "pull"); pull.Outcome.Entry != nil {
		t.Fatalf("pull after jump returned %+v", pull.Outcome.Entry)
	}

	entries, err := client.Log(ctx, 1)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(entries) != 1 || entries[0].Value != "x" {
		t.Fatalf("backend log = %+v", entries)
	}
}

func TestStaleObjectStuckUntilFetch(t *testing.T) {
	client, ctx := setup(t)

	mustPut(t, ctx, client, "fruit", "a", "x")
	mustRun(t, ctx, client, "jump")
	mustPut(t, ctx, client, "fruit", "b", "y")

	res := mustRun(t, ctx, client, "pull", "apply")
	if res.Outcome.Stuck != 1 || len(res.State.Client.Pending) != 1 || !res.State.Client.Pending[0].Stuck {
		t.Fatalf("expected one stuck entry, got %+v", res.State.Client.Pending)
	}

	// retrying without a fetch changes nothing
	res = mustRun(t, ctx, client, "apply")
	if res.Outcome.Stuck != 1 {
		t.Fatalf("retry outcome = %+v", res.Outcome)
	}

	res = mustRun(t, ctx, client, "fetch", "apply")
	if res.Outcome.Applied != 1 || len(res.State.Client.Pending) != 0 {
		t.Fatalf("apply after fetch = %+v pending %+v", res.Outcome, res.State.Client.Pending)
	}
	if fruit := res.State.Client.Objects["fruit"]; len(fruit.Fields) != 2 {
		t.Fatalf("client fruit = %+v", fruit)
	}
}

func TestCatchUpConverges(t *testing.T) {
	client, ctx := setup(t)

	writes := [][3]string{
		{"fruit", "a", "x"}, {"tool", "c", "z"}, {"fruit", "b", "y"},
		{"fruit", "a", "w"}, {"tool", "d", "q"}, {"veg", "e", "v"},
	}
	for _, w := range writes {
		mustPut(t, ctx, client, w[0], w[1], w[2])
	}

	for i := 0; ; i++ {
		if i > len(writes) {
			t.Fatalf("pull did not reach the head of the log")
		}
		if res := mustRun(t, ctx, client, "pull"); res.Outcome.Entry == nil {
			break
		}
	}
	mustRun(t, ctx, client, "fetch", "apply")

	s := mustState(t, ctx, client)
	if !reflect.DeepEqual(s.Client.Objects, s.Backend.Objects) {
		t.Fatalf("client %+v != backend %+v", s.Client.Objects, s.Backend.Objects)
	}
}

func TestMalformedEntryIsDropped(t *testing.T) {
	client, ctx := setup(t)

	for _, raw := range []string{"Fruit/a=x", "fruit/a", "fruit/a=x1", ""} {
		res, err := client.Submit(ctx, raw)
		if err != nil {
			t.Fatalf("submit %q: %v", raw, err)
		}
		if res.Dispatched {
			t.Fatalf("malformed %q dispatched", raw)
		}
	}
	if s := mustState(t, ctx, client); s.Backend.NextSeqno != 1 {
		t.Fatalf("backend advanced to %d", s.Backend.NextSeqno)
	}

	_, err := client.Put(ctx, "fruit", "a", "X")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid value, got %v", err)
	}
}

func TestConcurrentPutsGetUniqueSeqnos(t *testing.T) {
	client, ctx := setup(t)

	const writers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seqnos = map[uint64]bool{}
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.Put(ctx, "fruit", fmt.Sprintf("k%c", 'a'+i), "v")
			if err != nil || res.Outcome == nil || res.Outcome.Entry == nil {
				t.Errorf("put %d: %v", i, err)
				return
			}
			mu.Lock()
			seqnos[res.Outcome.Entry.Seqno] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(seqnos) != writers {
		t.Fatalf("expected %d unique seqnos, got %v", writers, seqnos)
	}
	for seq := uint64(1); seq <= writers; seq++ {
		if !seqnos[seq] {
			t.Fatalf("seqno %d missing from %v", seq, seqnos)
		}
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
