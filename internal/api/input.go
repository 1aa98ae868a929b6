package api

import (
	"regexp"
	"strings"

	"seqsync/internal/model"
)

var tokenPattern = regexp.MustCompile(`^[a-z]+$`)

func validToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// ParseEntry turns raw dashboard input of the form "namespace/key=value"
// into a put command. Only a trailing line ending is stripped; input where
// any token is not lowercase letters is rejected.
func ParseEntry(raw string) (model.Command, bool) {
	target, value, ok := strings.Cut(strings.TrimRight(raw, "\r\n"), "=")
	if !ok {
		return model.Command{}, false
	}
	namespace, key, ok := strings.Cut(target, "/")
	if !ok {
		return model.Command{}, false
	}
	if !validToken(namespace) || !validToken(key) || !validToken(value) {
		return model.Command{}, false
	}
	return model.Put(namespace, key, value), true
}
