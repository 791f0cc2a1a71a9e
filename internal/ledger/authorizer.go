package ledger

import (
	"context"
	"strings"
)

// Authorizer decides whether an actor holds elevated privilege. Privileged
// actions are REVERT events, certification revocation, deactivation and
// clearing an integrity flag.
type Authorizer interface {
	IsPrivileged(ctx context.Context, actorID string) bool
}

// StaticAuthorizer grants privilege to a fixed set of actor ids.
type StaticAuthorizer map[string]bool

// NewStaticAuthorizer builds a StaticAuthorizer from a list of actor ids.
// Blank entries are ignored.
func NewStaticAuthorizer(actors []string) StaticAuthorizer {
	a := make(StaticAuthorizer, len(actors))
	for _, id := range actors {
		if id = strings.TrimSpace(id); id != "" {
			a[id] = true
		}
	}
	return a
}

func (a StaticAuthorizer) IsPrivileged(_ context.Context, actorID string) bool {
	return actorID != "" && a[actorID]
}
