package engine

import (
	"seqsync/internal/model"
)

// State is the whole system: one Backend and the one Client replicating it.
type State struct {
	Backend Backend
	Client  Client
}

func NewState() State {
	return State{Backend: NewBackend(), Client: NewClient()}
}

// Outcome describes what one command did to the state.
type Outcome struct {
	Command   model.Command
	Entry     *model.FieldEntry // written by put, or pulled by pull
	Fetched   []string
	Applied   int
	Stuck     int
	Discarded int
}

// Reduce applies cmd to s and returns the next state. It never fails: a
// command with nothing to do returns s unchanged. Unknown kinds are no-ops.
func Reduce(s State, cmd model.Command) (State, Outcome) {
	out := Outcome{Command: cmd}
	switch cmd.Kind {
	case model.PUT:
		var entry model.FieldEntry
		s.Backend, entry = s.Backend.Write(cmd.Namespace, cmd.Key, cmd.Value)
		out.Entry = &entry
	case model.PULL:
		var (
			entry model.FieldEntry
			ok    bool
		)
		if s.Client, entry, ok = s.Client.Pull(s.Backend); ok {
			out.Entry = &entry
		}
	case model.FETCH:
		s.Client, out.Fetched = s.Client.Fetch(s.Backend)
	case model.APPLY:
		var res ApplyResult
		s.Client, res = s.Client.Apply()
		out.Applied, out.Stuck = res.Applied, res.Stuck
	case model.JUMP:
		s.Client, out.Discarded = s.Client.Jump(s.Backend)
	}
	return s, out
}

// Replay folds cmds over s in order.
func Replay(s State, cmds []model.Command) State {
	for _, cmd := range cmds {
		s, _ = Reduce(s, cmd)
	}
	return s
}
