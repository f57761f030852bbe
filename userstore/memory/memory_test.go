package memory

import (
	"context"
	"testing"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/userstore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) otpgate.UserDirectory {
		return New()
	})
}

func TestStoreDoesNotAliasCallerData(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := storetest.NewUser("alias@example.com")
	require.NoError(t, s.Create(ctx, u))
	u.Profile.Skills[0] = "mutated"

	got, err := s.FindByEmail(ctx, "alias@example.com")
	require.NoError(t, err)
	assert.Equal(t, "go", got.Profile.Skills[0])

	got.Name = "changed"
	again, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", again.Name)
	assert.Equal(t, 1, s.Len())
}
