package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/promptgist/promptgist/internal/identity"
)

var alice = identity.User{ID: "sub-1", Name: "Alice", Email: "alice@example.com"}

func TestCreateAndValidateSession(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	r, err := svc.CreateSession(ctx, alice, time.Hour)
	require.NoError(t, err)
	require.Len(t, r, 64)

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "sub-1", sess.Sub)
	require.Equal(t, alice, sess.User)

	require.NoError(t, svc.DeleteRefresh(ctx, r))
	sess, err = svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestValidateRefresh_Expired(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.CreateSession(ctx, alice, -time.Second)
	require.NoError(t, err)

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess)

	// expired sessions are cleaned up
	left, err := repo.GetByRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, left)
}

func TestRotate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	r1, err := svc.CreateSession(ctx, alice, time.Hour)
	require.NoError(t, err)

	sess, r2, err := svc.Rotate(ctx, r1, time.Hour)
	require.NoError(t, err)
	require.Equal(t, alice, sess.User)
	require.NotEqual(t, r1, r2)

	// the old token is spent
	_, _, err = svc.Rotate(ctx, r1, time.Hour)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	next, err := svc.ValidateRefresh(ctx, r2)
	require.NoError(t, err)
	require.Equal(t, alice, next.User)
}
