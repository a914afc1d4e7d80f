package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/svcgateway/svcgw/internal/auth"
)

func TestGuard_RoleRules(t *testing.T) {
	guard := DefaultGuard()

	admin := &auth.Identity{Subject: "root", Roles: []string{"admin"}}
	user := &auth.Identity{Subject: "alice", Roles: []string{"user"}}
	nobody := &auth.Identity{Subject: "bob"}

	tests := []struct {
		name     string
		identity *auth.Identity
		path     string
		wantErr  error
	}{
		{"admin area allows admin", admin, "/api/admin/metrics", nil},
		{"admin area rejects user", user, "/api/admin/metrics", ErrRoleRequired},
		{"admin area rejects roleless", nobody, "/api/admin", ErrRoleRequired},
		{"user area allows user", user, "/api/user/alice/profile", nil},
		{"user area allows admin", admin, "/api/user/alice/profile", nil},
		{"user area rejects roleless", nobody, "/api/user/bob", ErrRoleRequired},
		{"unguarded path allows anyone", nobody, "/api/orders", nil},
		{"prefix matches whole segments", user, "/api/administration", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Authorize(tt.identity, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuard_Ownership(t *testing.T) {
	guard := DefaultGuard()

	alice := &auth.Identity{Subject: "alice", Roles: []string{"user"}}
	admin := &auth.Identity{Subject: "root", Roles: []string{"admin"}}

	assert.NoError(t, guard.Authorize(alice, "/api/user/alice/orders"))
	assert.ErrorIs(t, guard.Authorize(alice, "/api/user/bob/orders"), ErrNotOwner)
	assert.NoError(t, guard.Authorize(admin, "/api/user/bob/orders"), "admin overrides ownership")
	assert.NoError(t, guard.Authorize(alice, "/api/user"), "no owner segment, nothing to check")
}

func TestGuard_LongestPrefixWins(t *testing.T) {
	guard := NewGuard([]Rule{
		{Prefix: "/api", Roles: nil},
		{Prefix: "/api/internal", Roles: []string{"admin"}},
	})

	user := &auth.Identity{Subject: "alice", Roles: []string{"user"}}

	assert.NoError(t, guard.Authorize(user, "/api/orders"))
	assert.ErrorIs(t, guard.Authorize(user, "/api/internal/jobs"), ErrRoleRequired)
}
