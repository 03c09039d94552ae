package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "stockledger/internal/core/context"
)

func TestRuleChecker_DefaultRule(t *testing.T) {
	roles := StaticRoles{
		"alice": {"inventory_manager"},
		"bob":   {"clerk"},
		"root":  {"admin"},
	}
	checker, err := NewRuleChecker("", roles)
	require.NoError(t, err)

	tests := []struct {
		actor string
		want  bool
	}{
		{"alice", true},
		{"bob", false},
		{"root", true},
		{"nobody", false},
	}
	for _, tt := range tests {
		t.Run(tt.actor, func(t *testing.T) {
			got, err := checker.HasAutoApprovalCapability(context.Background(), tt.actor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleChecker_CustomRule(t *testing.T) {
	checker, err := NewRuleChecker(`actor_id == "robot" || roles.exists(r, r.startsWith("wh_"))`, StaticRoles{
		"carol": {"wh_lead"},
	})
	require.NoError(t, err)

	ok, err := checker.HasAutoApprovalCapability(context.Background(), "robot")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.HasAutoApprovalCapability(context.Background(), "carol")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.HasAutoApprovalCapability(context.Background(), "dave")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuleChecker_RejectsBadRules(t *testing.T) {
	_, err := NewRuleChecker(`roles +`, nil)
	assert.Error(t, err)

	_, err = NewRuleChecker(`actor_id`, nil)
	assert.Error(t, err)
}

func TestContextRoles(t *testing.T) {
	checker, err := NewRuleChecker("", nil)
	require.NoError(t, err)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u1",
		Roles:  []string{"inventory_manager"},
	})

	ok, err := checker.HasAutoApprovalCapability(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.HasAutoApprovalCapability(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}
