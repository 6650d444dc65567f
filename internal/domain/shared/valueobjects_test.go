package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserID_Trims(t *testing.T) {
	id, err := NewUserID("  alice ")
	require.NoError(t, err)
	assert.Equal(t, UserID("alice"), id)

	_, err = NewUserID("   ")
	assert.True(t, IsValidation(err))
}

func TestValidateUserIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		ok   bool
	}{
		{name: "canonical", ids: []string{"alice", "bob.k", "u-1@x"}, ok: true},
		{name: "empty", ids: []string{"alice", ""}},
		{name: "trailing space", ids: []string{"alice "}},
		{name: "leading tab", ids: []string{"\talice"}},
		{name: "path", ids: []string{"a/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserIDs(tt.ids...)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsValidation(err))
		})
	}
}
