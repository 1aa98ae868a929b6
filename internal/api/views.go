package api

import (
	"seqsync/internal/engine"
	"seqsync/internal/model"
)

type objectView struct {
	Seqno     uint64             `json:"seqno"`
	CreatedAt uint64             `json:"createdAt"`
	Fields    []model.FieldEntry `json:"fields"`
}

type backendView struct {
	NextSeqno uint64                `json:"nextSeqno"`
	Objects   map[string]objectView `json:"objects"`
}

type pendingView struct {
	model.FieldEntry
	Stuck bool `json:"stuck"`
}

type clientView struct {
	ReplicaID    string                `json:"replicaId"`
	StartedSeqno uint64                `json:"startedSeqno"`
	NextSeqno    uint64                `json:"nextSeqno"`
	Objects      map[string]objectView `json:"objects"`
	Pending      []pendingView         `json:"pending"`
}

type stateView struct {
	Backend backendView `json:"backend"`
	Client  clientView  `json:"client"`
}

type outcomeView struct {
	Command   string            `json:"command"`
	Entry     *model.FieldEntry `json:"entry,omitempty"`
	Fetched   []string          `json:"fetched,omitempty"`
	Applied   int               `json:"applied"`
	Stuck     int               `json:"stuck"`
	Discarded int               `json:"discarded"`
}

type commandResponse struct {
	Dispatched bool         `json:"dispatched"`
	Outcome    *outcomeView `json:"outcome,omitempty"`
	State      *stateView   `json:"state,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func newObjectsView(objs model.Objects) map[string]objectView {
	out := make(map[string]objectView, len(objs))
	for name, obj := range objs {
		out[name] = objectView{Seqno: obj.Seqno(), CreatedAt: obj.CreatedAt(), Fields: obj.Entries()}
	}
	return out
}

func newStateView(s engine.State) stateView {
	pending := make([]pendingView, 0, len(s.Client.Pending))
	for _, e := range s.Client.Pending {
		pending = append(pending, pendingView{FieldEntry: e, Stuck: s.Client.IsStuck(e.Seqno)})
	}
	return stateView{
		Backend: backendView{
			NextSeqno: s.Backend.NextSeqno,
			Objects:   newObjectsView(s.Backend.Objects),
		},
		Client: clientView{
			ReplicaID:    s.Client.ReplicaID.String(),
			StartedSeqno: s.Client.StartedSeqno,
			NextSeqno:    s.Client.NextSeqno,
			Objects:      newObjectsView(s.Client.Objects),
			Pending:      pending,
		},
	}
}

func newCommandResponse(out engine.Outcome, s engine.State) commandResponse {
	state := newStateView(s)
	return commandResponse{
		Dispatched: true,
		Outcome: &outcomeView{
			Command:   out.Command.Kind.String(),
			Entry:     out.Entry,
			Fetched:   out.Fetched,
			Applied:   out.Applied,
			Stuck:     out.Stuck,
			Discarded: out.Discarded,
		},
		State: &state,
	}
}
