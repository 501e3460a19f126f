package actorcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Role is the coarse role the identity provider attaches to a caller.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleWaiter Role = "waiter"
	RoleCook   Role = "cook"
	RoleSystem Role = "system"
)

// ParseRole normalizes a raw role name; ok is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleClient:
		return RoleClient, true
	case RoleWaiter:
		return RoleWaiter, true
	case RoleCook:
		return RoleCook, true
	case RoleSystem:
		return RoleSystem, true
	default:
		return "", false
	}
}

// IsStaff reports whether the role works on the restaurant floor or back office.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleWaiter || r == RoleCook
}

// Actor identifies who performs an operation.
type Actor struct {
	UserID snowflake.ID
	Role   Role
}

// System is the actor used by background jobs.
var System = Actor{Role: RoleSystem}

func (a Actor) IsZero() bool {
	return a.UserID == 0 && a.Role == ""
}

// UserIDPtr returns nil for the system actor.
func (a Actor) UserIDPtr() *snowflake.ID {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

type actorKey struct{}

// WithActor stores the acting user in the context.
func WithActor(ctx context.Context, userID snowflake.ID, role Role) context.Context {
	return context.WithValue(ctx, actorKey{}, Actor{UserID: userID, Role: role})
}

// WithSystem marks the context as running on behalf of the system.
func WithSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, actorKey{}, System)
}

// FromContext returns the actor, if set.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.IsZero() {
		return Actor{}, false
	}
	return actor, true
}
