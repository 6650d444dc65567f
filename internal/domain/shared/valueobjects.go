package shared

import (
	"context"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a platform user. IDs come from the auth provider and are
// opaque, but they end up as document IDs and path segments, so only a safe
// character set is accepted.
type UserID string

// MaxUserIDLength bounds user IDs.
const MaxUserIDLength = 128

var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-.:@]+$`)

// IsValid checks if the user ID is non-empty, bounded and path-safe.
func (u UserID) IsValid() bool {
	s := string(u)
	return s != "" && len(s) <= MaxUserIDLength && userIDRegex.MatchString(s)
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID trims and validates a raw user ID.
func NewUserID(raw string) (UserID, error) {
	id := UserID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrValidation, "invalid user ID")
	}
	return id, nil
}

// ValidateUserIDs checks every ID, returning the first failure. IDs are used
// verbatim as store keys, so surrounding whitespace is rejected rather than
// trimmed.
func ValidateUserIDs(ids ...string) error {
	for _, id := range ids {
		uid, err := NewUserID(id)
		if err != nil {
			return err
		}
		if uid.String() != id {
			return NewDomainError("shared", "ValidateUserIDs", ErrValidation, "user ID has surrounding whitespace")
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// User Profile
// ═══════════════════════════════════════════════════════════════════════════

// UserProfile is the display data shown next to a user in rankings and
// snapshotted into follow edges.
type UserProfile struct {
	DisplayName string
	AvatarRef   string
}

// ProfileLookup resolves a user's profile. Absent users are reported with an
// error matching ErrNotFound.
type ProfileLookup interface {
	GetUser(ctx context.Context, userID string) (UserProfile, error)
}
