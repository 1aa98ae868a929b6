package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"seqsync/internal/model"
)

var (
	ErrControllerClosed = errors.New("sync controller closed")
	ErrEnqueueTimeout   = errors.New("timeout waiting for command to be enqueued")
)

const (
	defaultEnqueueTimeout     = 500 * time.Millisecond
	defaultTraceFlushInterval = time.Second
)

type SyncControllerCfg struct {
	EnqueueTimeout    time.Duration
	MaxQueuedCommands int

	// TracePath enables the command trace when non-empty.
	TracePath          string
	TraceFlushInterval time.Duration
	TraceBufferBytes   int

	Log *logrus.Entry
}

type commandMsg struct {
	cmd  model.Command
	done chan commandResult
}

type commandResult struct {
	outcome Outcome
	state   State
	err     error
}

/*
SyncController owns the Backend/Client state inside one goroutine:
- Ordering: the channel preserves submission order; commands never interleave.
- Ownership: only the run goroutine computes new states; everyone else reads
  published immutable snapshots.
- Backpressure: bounded channel + enqueue timeout makes callers fail fast.
- Trace: a command is recorded before it is applied; if recording fails the
  command is rejected and the state is left alone.
- Shutdown: context cancellation flushes the trace and closes subscribers.
*/
type SyncController struct {
	cfg      SyncControllerCfg
	log      *logrus.Entry
	commands chan commandMsg
	state    atomic.Pointer[State]
	trace    *traceRecorder
	done     chan struct{}

	mu          sync.Mutex // protects the fields below
	subscribers map[int]chan State
	nextSubID   int
	closed      bool
}

// NewSyncController starts a controller over a fresh State. Cancel the
// returned function (or ctx) to stop it.
func NewSyncController(ctx context.Context, cfg SyncControllerCfg) (*SyncController, context.CancelFunc, error) {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.MaxQueuedCommands <= 0 {
		cfg.MaxQueuedCommands = defaultMaxQueuedCommands
	}
	if cfg.TraceFlushInterval <= 0 {
		cfg.TraceFlushInterval = defaultTraceFlushInterval
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	initial := NewState()
	c := &SyncController{
		cfg:         cfg,
		log:         log.WithField("replica", initial.Client.ReplicaID.String()),
		commands:    make(chan commandMsg, cfg.MaxQueuedCommands),
		done:        make(chan struct{}),
		subscribers: map[int]chan State{},
	}
	c.state.Store(&initial)

	if cfg.TracePath != "" {
		rec, err := openTraceRecorder(cfg.TracePath, cfg.TraceBufferBytes, c.log)
		if err != nil {
			return nil, nil, err
		}
		c.trace = rec
		c.log.WithFields(logrus.Fields{"trace": cfg.TracePath, "next": rec.nextSequence, "session": rec.session}).Info("command trace enabled")
	}

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		c.run(runCtx)
		c.shutdown()
	}()
	return c, cancel, nil
}

// Dispatch submits cmd and waits for it to be applied. It returns the
// outcome together with the state right after the command.
func (c *SyncController) Dispatch(ctx context.Context, cmd model.Command) (Outcome, State, error) {
	msg := commandMsg{cmd: cmd, done: make(chan commandResult, 1)}
	timer := time.NewTimer(c.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case c.commands <- msg:
	case <-timer.C:
		return Outcome{}, State{}, ErrEnqueueTimeout
	case <-ctx.Done():
		return Outcome{}, State{}, ctx.Err()
	case <-c.done:
		return Outcome{}, State{}, ErrControllerClosed
	}

	select {
	case res := <-msg.done:
		return res.outcome, res.state, res.err
	case <-c.done:
		select {
		case res := <-msg.done:
			return res.outcome, res.state, res.err
		default:
			return Outcome{}, State{}, ErrControllerClosed
		}
	}
}

// Snapshot returns the state after the most recently applied command.
func (c *SyncController) Snapshot() State {
	return *c.state.Load()
}

// Subscribe returns a channel that receives the latest state after every
// command. Slow readers only miss intermediate states. The channel is closed
// when the controller stops or cancel is called.
func (c *SyncController) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.Snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Done is closed once the controller has stopped.
func (c *SyncController) Done() <-chan struct{} {
	return c.done
}

func (c *SyncController) run(ctx context.Context) {
	var flushC <-chan time.Time
	if c.trace != nil {
		t := time.NewTicker(c.cfg.TraceFlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	for {
		select {
		case msg := <-c.commands:
			msg.done <- c.handle(msg.cmd)
		case <-flushC:
			if err := c.trace.flush(); err != nil {
				c.log.WithError(err).Error("periodic trace flush failed")
			}
		case <-ctx.Done():
			c.log.Info("sync controller shutting down")
			return
		}
	}
}

func (c *SyncController) handle(cmd model.Command) commandResult {
	if c.trace != nil {
		if err := c.trace.record(cmd); err != nil {
			c.log.WithError(err).WithField("command", cmd.String()).Error("trace record failed")
			return commandResult{state: c.Snapshot(), err: err}
		}
	}

	next, out := Reduce(c.Snapshot(), cmd)
	c.state.Store(&next)
	logOutcome(c.log, out, next)
	c.publish(next)
	return commandResult{outcome: out, state: next}
}

func (c *SyncController) publish(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (c *SyncController) shutdown() {
	if c.trace != nil {
		if err := c.trace.close(); err != nil {
			c.log.WithError(err).Error("trace shutdown flush failed")
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

func logOutcome(log *logrus.Entry, out Outcome, s State) {
	fields := logrus.Fields{
		"command": out.Command.Kind.String(),
		"cursor":  s.Client.NextSeqno,
		"started": s.Client.StartedSeqno,
		"pending": len(s.Client.Pending),
	}
	switch out.Command.Kind {
	case model.PUT, model.PULL:
		if out.Entry == nil {
			log.WithFields(fields).Debug("already at log head")
			return
		}
		fields["name"] = out.Entry.Name
		fields["key"] = out.Entry.Key
		fields["seqno"] = out.Entry.Seqno
	case model.FETCH:
		fields["fetched"] = out.Fetched
	case model.APPLY:
		fields["applied"] = out.Applied
		fields["stuck"] = out.Stuck
	case model.JUMP:
		fields["discarded"] = out.Discarded
	}
	log.WithFields(fields).Debug("command applied")
}
