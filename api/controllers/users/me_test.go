package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterlane/billingdash-backend/api/middleware"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/types"
)

type stubUserLookup struct {
	user *models.User
	err  error
}

func (s *stubUserLookup) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.user, s.err
}

func profileRequest(t *testing.T, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func TestProfileReturnsAccount(t *testing.T) {
	userID := uuid.New()
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	lookup := &stubUserLookup{user: &models.User{
		ID:        userID,
		Email:     "owner@example.com",
		Name:      "Dana Owner",
		IsActive:  true,
		CreatedAt: created,
	}}

	rec := httptest.NewRecorder()
	Profile(lookup, nil).ServeHTTP(rec, profileRequest(t, userID.String()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	payload, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "expected object payload")

	assert.Equal(t, userID.String(), payload["id"])
	assert.Equal(t, "owner@example.com", payload["email"])
	assert.Equal(t, "Dana Owner", payload["name"])
	assert.Equal(t, true, payload["isActive"])
	assert.Equal(t, created.Format(time.RFC3339), payload["createdAt"])
}

func TestProfileUnknownUser(t *testing.T) {
	rec := httptest.NewRecorder()
	Profile(&stubUserLookup{}, nil).ServeHTTP(rec, profileRequest(t, uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileStoreFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	Profile(&stubUserLookup{err: errors.New("connection reset")}, nil).
		ServeHTTP(rec, profileRequest(t, uuid.NewString()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestProfileRejectsAnonymous(t *testing.T) {
	rec := httptest.NewRecorder()
	Profile(&stubUserLookup{}, nil).ServeHTTP(rec, profileRequest(t, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
