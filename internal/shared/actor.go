package shared

import "context"

// Actor identifies the authenticated user performing an operation. Capability
// checks happen upstream; this core only consumes the identity and division
// membership for ownership and scope decisions.
type Actor struct {
	ID         int64
	DivisionID *int64
}

// InDivision reports whether the actor belongs to the given division.
func (a Actor) InDivision(divisionID int64) bool {
	return a.DivisionID != nil && *a.DivisionID == divisionID
}

// IsWarehouse reports whether the actor operates at warehouse level.
func (a Actor) IsWarehouse() bool {
	return a.DivisionID == nil
}

// CanAccessScope reports whether the actor may touch a resource in the given
// scope. Warehouse-scoped resources (nil division) are accessible to all;
// division-scoped resources require matching membership or a warehouse actor.
func (a Actor) CanAccessScope(divisionID *int64) bool {
	if divisionID == nil {
		return true
	}
	return a.IsWarehouse() || a.InDivision(*divisionID)
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
