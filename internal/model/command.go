package model

import "fmt"

type CommandKind byte

const (
	PUT CommandKind = iota
	JUMP
	PULL
	FETCH
	APPLY
)

var commandNames = [...]string{
	PUT:   "put",
	JUMP:  "jump",
	PULL:  "pull",
	FETCH: "fetch",
	APPLY: "apply",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return fmt.Sprintf("command(%d)", byte(k))
}

// Valid reports whether k is one of the known command kinds.
func (k CommandKind) Valid() bool {
	return int(k) < len(commandNames)
}

// ParseCommandKind maps a command name such as "pull" to its kind.
func ParseCommandKind(name string) (CommandKind, error) {
	for k, n := range commandNames {
		if n == name {
			return CommandKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Command is one state transition request. Namespace, Key and Value are
// only meaningful for PUT.
type Command struct {
	Kind      CommandKind
	Namespace string
	Key       string
	Value     string
}

func Put(namespace, key, value string) Command {
	return Command{Kind: PUT, Namespace: namespace, Key: key, Value: value}
}

func Jump() Command  { return Command{Kind: JUMP} }
func Pull() Command  { return Command{Kind: PULL} }
func Fetch() Command { return Command{Kind: FETCH} }
func Apply() Command { return Command{Kind: APPLY} }

func (c Command) String() string {
	if c.Kind == PUT {
		return fmt.Sprintf("put(%s/%s=%s)", c.Namespace, c.Key, c.Value)
	}
	return c.Kind.String() + "()"
}
