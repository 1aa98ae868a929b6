// Command tracedump prints the commands recorded in a sync controller trace
// and optionally replays them to show the state they produce.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"seqsync/internal/engine"
	"seqsync/internal/model"
)

func main() {
	if err := mainInner(os.Args[1:], os.Stdout); err != nil {
		logrus.WithError(err).Fatal("tracedump failed")
	}
}

func mainInner(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tracedump", flag.ContinueOnError)
	path := fs.String("trace", os.Getenv("SYNC_TRACE_PATH"), "path of the trace file")
	replay := fs.Bool("replay", false, "replay each session and print the state it ended with")
	verbose := fs.Bool("v", false, "log corruption details")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("no trace path given, use -trace or SYNC_TRACE_PATH")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	records, err := engine.LoadTrace(*path, logrus.NewEntry(logger))
	if err != nil {
		return err
	}

	// every session began from a fresh state, so each one replays on its own
	for i, session := range engine.SplitSessions(records) {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "session %d\n", session[0].Session)
		for _, rec := range session {
			fmt.Fprintf(out, "%6d  %s\n", rec.Sequence, rec.Command)
		}
		if *replay {
			fmt.Fprintln(out)
			printState(out, engine.ReplaySession(session))
		}
	}
	return nil
}

func printState(out io.Writer, s engine.State) {
	fmt.Fprintf(out, "backend next=%d\n", s.Backend.NextSeqno)
	printObjects(out, s.Backend.Objects)

	fmt.Fprintf(out, "client %s started=%d next=%d\n", s.Client.ReplicaID, s.Client.StartedSeqno, s.Client.NextSeqno)
	printObjects(out, s.Client.Objects)
	for _, e := range s.Client.Pending {
		mark := ""
		if s.Client.IsStuck(e.Seqno) {
			mark = " (stuck)"
		}
		fmt.Fprintf(out, "  pending %d %s/%s=%s%s\n", e.Seqno, e.Name, e.Key, e.Value, mark)
	}
}

func printObjects(out io.Writer, objs model.Objects) {
	for _, name := range objs.Names() {
		obj := objs[name]
		fmt.Fprintf(out, "  %s seqno=%d created=%d\n", name, obj.Seqno(), obj.CreatedAt())
		for _, e := range obj.Entries() {
			fmt.Fprintf(out, "    %s=%s @%d\n", e.Key, e.Value, e.Seqno)
		}
	}
}
