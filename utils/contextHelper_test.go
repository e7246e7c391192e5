package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextActorFields(t *testing.T) {
	ctx := context.Background()
	_, ok := GetUserIdFromContext(ctx)
	assert.False(t, ok)

	ctx = SetUserIdInContext(ctx, 7)
	ctx = SetUsernameInContext(ctx, "mya")
	ctx = SetUserNameInContext(ctx, "Mya Mya")
	ctx = SetRolesInContext(ctx, []string{"ACCOUNTANT"})
	ctx = SetIsAdminInContext(ctx, true)

	id, ok := GetUserIdFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, 7, id)
	username, _ := GetUsernameFromContext(ctx)
	assert.Equal(t, "mya", username)
	name, _ := GetUserNameFromContext(ctx)
	assert.Equal(t, "Mya Mya", name)
	roles, _ := GetRolesFromContext(ctx)
	assert.Equal(t, []string{"ACCOUNTANT"}, roles)
	admin, _ := GetIsAdminFromContext(ctx)
	assert.True(t, admin)

	_, ok = GetTokenFromContext(ctx)
	assert.False(t, ok, "empty token is not a token")
}

func TestContextSettersDoNotLeakToParent(t *testing.T) {
	parent := SetRolesInContext(context.Background(), []string{"CLERK"})
	child := SetIsAdminInContext(parent, true)

	admin, _ := GetIsAdminFromContext(parent)
	assert.False(t, admin)
	admin, _ = GetIsAdminFromContext(child)
	assert.True(t, admin)
}

func TestSystemContext(t *testing.T) {
	ctx := SetIsAdminInContext(SetUserIdInContext(context.Background(), 9), true)
	ctx = SystemContext(ctx, "corr-1")

	id, ok := GetUserIdFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, 0, id)
	admin, _ := GetIsAdminFromContext(ctx)
	assert.False(t, admin)
	name, _ := GetUserNameFromContext(ctx)
	assert.Equal(t, "System", name)
	corr, ok := GetCorrelationIdFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "corr-1", corr)

	_, ok = GetCorrelationIdFromContext(SystemContext(context.Background(), ""))
	assert.False(t, ok)
}
