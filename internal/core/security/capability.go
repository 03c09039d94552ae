// Package security evaluates actor capabilities from configurable rules.
package security

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	appctx "stockledger/internal/core/context"
)

// DefaultAutoApproveRule grants auto-approval to administrators and inventory managers.
const DefaultAutoApproveRule = `"admin" in roles || "inventory_manager" in roles`

// RoleSource resolves the roles held by an actor.
type RoleSource interface {
	Roles(ctx context.Context, actorID string) ([]string, error)
}

// RoleSourceFunc adapts a function to RoleSource.
type RoleSourceFunc func(ctx context.Context, actorID string) ([]string, error)

// Roles implements RoleSource.
func (f RoleSourceFunc) Roles(ctx context.Context, actorID string) ([]string, error) {
	return f(ctx, actorID)
}

// ContextRoles reads roles from the authenticated user in ctx.
// Actors other than the authenticated user have no roles.
var ContextRoles RoleSource = RoleSourceFunc(func(ctx context.Context, actorID string) ([]string, error) {
	user := appctx.GetUser(ctx)
	if user == nil || user.UserID != actorID {
		return nil, nil
	}
	if user.IsAdmin {
		return append([]string{"admin"}, user.Roles...), nil
	}
	return user.Roles, nil
})

// StaticRoles is a fixed actor to roles mapping, used by tools and tests.
type StaticRoles map[string][]string

// Roles implements RoleSource.
func (s StaticRoles) Roles(_ context.Context, actorID string) ([]string, error) {
	return s[actorID], nil
}

// RuleChecker decides whether an actor may have checkouts approved on submission.
// The rule is a CEL expression over `actor_id` (string) and `roles` (list of strings).
type RuleChecker struct {
	rule    string
	program cel.Program
	roles   RoleSource
}

// NewRuleChecker compiles rule. An empty rule uses DefaultAutoApproveRule.
func NewRuleChecker(rule string, roles RoleSource) (*RuleChecker, error) {
	if rule == "" {
		rule = DefaultAutoApproveRule
	}
	if roles == nil {
		roles = ContextRoles
	}

	env, err := cel.NewEnv(
		cel.Variable("actor_id", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Compile(rule)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile auto-approve rule: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("auto-approve rule must be boolean, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build auto-approve program: %w", err)
	}

	return &RuleChecker{rule: rule, program: prg, roles: roles}, nil
}

// Rule returns the source expression.
func (c *RuleChecker) Rule() string {
	return c.rule
}

// HasAutoApprovalCapability evaluates the rule for actorID.
func (c *RuleChecker) HasAutoApprovalCapability(ctx context.Context, actorID string) (bool, error) {
	roles, err := c.roles.Roles(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("resolve roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}

	out, _, err := c.program.ContextEval(ctx, map[string]any{
		"actor_id": actorID,
		"roles":    roles,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate auto-approve rule: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("auto-approve rule returned %T", out.Value())
	}
	return allowed, nil
}
