package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	u, err := CreateUser("Office", " Office@North.test ", "secret123", ROLE_STAFF)
	require.NoError(t, err)
	assert.Equal(t, "office@north.test", u.Email)
	assert.NotEqual(t, "secret123", u.Password)
	assert.True(t, u.CheckPassword("secret123"))
	assert.False(t, u.CheckPassword("wrong"))
	assert.True(t, u.IsStaff())
	assert.False(t, u.IsSuperuser())
	assert.True(t, u.IsActive())
}

func TestCreateUserRejectsInput(t *testing.T) {
	_, err := CreateUser("Office", "office@north.test", "123", ROLE_STAFF)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = CreateUser("Office", "not-an-email", "secret123", ROLE_STAFF)
	assert.Error(t, err)

	_, err = CreateUser("Office", "office@north.test", "secret123", "owner")
	assert.Error(t, err)
}

func TestSuperuserIsStaff(t *testing.T) {
	u := &User{Role: ROLE_SUPERUSER, Status: STATUS_DISABLED}
	assert.True(t, u.IsStaff())
	assert.True(t, u.IsSuperuser())
	assert.False(t, u.IsActive())
}
