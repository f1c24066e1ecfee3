package tenantdata

import (
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// ResolveOwner picks whose documents a call operates on. Admins may name any
// user; everyone else may only name themselves.
func ResolveOwner(id *auth.Identity, requested string) (uuid.UUID, error) {
	requested = strings.TrimSpace(requested)

	if id.IsAdmin() {
		if requested == "" {
			return id.ID, nil
		}
		target, err := uuid.Parse(requested)
		if err != nil {
			return uuid.Nil, apperr.BadRequest("invalid-user-id", "userId must be a valid id")
		}
		return target, nil
	}

	if requested != "" && requested != id.ID.String() {
		return uuid.Nil, apperr.Forbidden("forbidden", "cannot access another user's data")
	}
	return id.ID, nil
}
