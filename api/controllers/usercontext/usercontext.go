package usercontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/meterlane/billingdash-backend/api/middleware"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
)

// ResolveUserID extracts the authenticated user id seeded by the auth middleware.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// ResolveUserEmail returns the authenticated user's email, if the token carried one.
func ResolveUserEmail(r *http.Request) string {
	return middleware.UserEmailFromContext(r.Context())
}
