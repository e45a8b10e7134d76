package shared

import "context"

// Role names recognised by the core. Authentication happens outside this
// service; the caller supplies the already-verified actor.
const (
	RoleAdmin  = "admin"
	RoleBranch = "branch"
)

// Actor identifies who performs an operation and which branch they act for.
// BranchID is zero for central-office actors.
type Actor struct {
	ID       int64
	Role     string
	BranchID int64
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ActsFor reports whether the actor may act on behalf of the given branch.
// Admins may act for any branch.
func (a Actor) ActsFor(branchID int64) bool {
	return a.IsAdmin() || a.BranchID == branchID
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned when no actor was attached.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
