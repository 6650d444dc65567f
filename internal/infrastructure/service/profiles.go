// Package service adapts the document store to the narrow lookup interfaces
// the domain and application layers depend on.
package service

import (
	"context"
	"errors"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

const (
	fieldDisplayName = "displayName"
	fieldAvatarURL   = "avatarUrl"
)

// ProfileService reads display data from the users collection.
type ProfileService struct {
	store store.DocumentStore
}

// NewProfileService creates a ProfileService.
func NewProfileService(st store.DocumentStore) *ProfileService {
	return &ProfileService{store: st}
}

// GetUser implements shared.ProfileLookup.
func (s *ProfileService) GetUser(ctx context.Context, userID string) (shared.UserProfile, error) {
	doc, err := s.store.Get(ctx, store.CollectionUsers, userID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return shared.UserProfile{}, shared.NewDomainError("users", "GetUser", shared.ErrNotFound, "user not found")
		}
		return shared.UserProfile{}, shared.StoreError("users", "GetUser", err)
	}
	return shared.UserProfile{
		DisplayName: store.String(doc.Data, fieldDisplayName),
		AvatarRef:   store.String(doc.Data, fieldAvatarURL),
	}, nil
}

var _ shared.ProfileLookup = (*ProfileService)(nil)
