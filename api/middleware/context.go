package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxRole      contextKey = "actor_role"
	ctxActorName contextKey = "actor_name"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
	Name string
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// ActorFromContext reports false when Auth did not run or seeded an
// unusable identity.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return Actor{}, false
	}
	role := RoleFromContext(ctx)
	if !role.IsValid() {
		return Actor{}, false
	}
	name, _ := ctx.Value(ctxActorName).(string)
	return Actor{ID: id, Role: role, Name: name}, true
}

// WithActor seeds the caller into ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.ID.String())
	ctx = context.WithValue(ctx, ctxRole, actor.Role)
	return context.WithValue(ctx, ctxActorName, actor.Name)
}
