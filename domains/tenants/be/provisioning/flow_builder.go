package provisioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/platform/go/identity"
	"github.com/rmsphere/control-plane/platform/go/retry"
)

// UsernamePasswordProvider is the generic username/password authenticator
// the builder replaces with the tenant-customized one.
const UsernamePasswordProvider = "auth-username-password-form"

// FlowBuilderConfig parameterizes the flow cloning.
type FlowBuilderConfig struct {
	// BaselineFlowAlias names the flow graph to clone (default "browser").
	BaselineFlowAlias string
	// CustomAuthenticator is the provider id inserted in place of the
	// username/password step.
	CustomAuthenticator string
	// AuthenticatorSettings is written onto the custom authenticator's
	// execution as its config map.
	AuthenticatorSettings map[string]string
	// Readiness bounds the polls for freshly created flows to become
	// resolvable; zero value uses retry.DefaultPolicy.
	Readiness retry.Policy
}

// FlowBuilder clones a baseline authentication-flow graph into a new
// tenant-specific flow, substituting the username/password step with a
// custom authenticator while preserving every other execution and its
// requirement level.
type FlowBuilder struct {
	admin  IdentityAdmin
	cfg    FlowBuilderConfig
	logger *zap.Logger
}

// NewFlowBuilder constructs a FlowBuilder.
func NewFlowBuilder(admin IdentityAdmin, cfg FlowBuilderConfig, logger *zap.Logger) *FlowBuilder {
	if admin == nil {
		panic("flow builder requires identity admin")
	}
	if cfg.BaselineFlowAlias == "" {
		cfg.BaselineFlowAlias = "browser"
	}
	if cfg.Readiness.MaxAttempts == 0 {
		cfg.Readiness = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowBuilder{admin: admin, cfg: cfg, logger: logger}
}

// flowNode is one entry of the flow graph reconstructed from the provider's
// flat execution listing.
type flowNode struct {
	exec     identity.ExecutionInfo
	children []*flowNode
}

func (n *flowNode) isSubflow() bool { return n.exec.AuthenticationFlow }

// Build creates the tenant flow, replays the baseline graph into it and
// binds it as the realm's active login flow. The produced flow is named
// "{tenantKey}-browser".
func (b *FlowBuilder) Build(ctx context.Context, realm, tenantKey string) error {
	// Fail fast before creating any flow object if the custom authenticator
	// is not registered with the provider.
	if err := b.verifyAuthenticatorRegistered(ctx, realm); err != nil {
		return err
	}

	baseline, err := b.admin.FlowExecutions(ctx, realm, b.cfg.BaselineFlowAlias)
	if err != nil {
		return fmt.Errorf("read baseline flow %s: %w", b.cfg.BaselineFlowAlias, err)
	}
	top := buildFlowTree(baseline)

	flowAlias := tenantKey + "-browser"
	if err := b.admin.CreateFlow(ctx, realm, identity.FlowRepresentation{
		Alias:       flowAlias,
		Description: "Tenant login flow for " + tenantKey,
		ProviderID:  "basic-flow",
		TopLevel:    true,
	}); err != nil {
		return fmt.Errorf("create flow shell: %w", err)
	}

	// Flow creation is eventually consistent: poll until the shell is
	// resolvable by alias before adding anything to it.
	if err := b.awaitFlowResolvable(ctx, realm, flowAlias); err != nil {
		return fmt.Errorf("flow %s never became resolvable: %w", flowAlias, err)
	}

	// Replay the baseline's top-level executions in original order.
	substituted := false
	for _, node := range top {
		switch {
		case !node.isSubflow() && node.exec.ProviderID == UsernamePasswordProvider:
			// Bare username/password at top level is dropped entirely.
			continue
		case node.isSubflow() && subtreeContainsProvider(node, UsernamePasswordProvider):
			if err := b.buildCustomSubflow(ctx, realm, flowAlias, tenantKey, node, node.exec.Requirement); err != nil {
				return err
			}
			substituted = true
		default:
			if err := b.copyNode(ctx, realm, flowAlias, tenantKey, node); err != nil {
				return err
			}
		}
	}

	// No password subflow anywhere at top level: append the custom subflow
	// at the end as a required step instead.
	if !substituted {
		if err := b.buildCustomSubflow(ctx, realm, flowAlias, tenantKey, nil, identity.RequirementRequired); err != nil {
			return err
		}
	}

	if err := b.configureCustomAuthenticator(ctx, realm, flowAlias, tenantKey); err != nil {
		return err
	}

	if err := b.bindBrowserFlow(ctx, realm, flowAlias); err != nil {
		return err
	}

	b.logger.Info("authentication flow bound",
		zap.String("realm", realm), zap.String("flow", flowAlias))
	return nil
}

func (b *FlowBuilder) verifyAuthenticatorRegistered(ctx context.Context, realm string) error {
	providers, err := b.admin.AuthenticatorProviders(ctx, realm)
	if err != nil {
		return fmt.Errorf("list authenticator providers: %w", err)
	}
	for _, id := range providers {
		if id == b.cfg.CustomAuthenticator {
			return nil
		}
	}
	return fmt.Errorf("custom authenticator %q is not registered with the identity provider", b.cfg.CustomAuthenticator)
}

// buildCustomSubflow creates the replacement forms subflow under parentAlias:
// the custom authenticator first as REQUIRED, then every execution of the
// original subflow except username/password, each with its original
// requirement. original may be nil when the baseline had no password subflow.
func (b *FlowBuilder) buildCustomSubflow(ctx context.Context, realm, parentAlias, tenantKey string, original *flowNode, requirement string) error {
	subAlias := tenantKey + "-forms"

	if err := b.admin.AddSubflow(ctx, realm, parentAlias, subAlias, "Customized form login for "+tenantKey); err != nil && !identity.IsConflict(err) {
		return fmt.Errorf("create subflow %s: %w", subAlias, err)
	}

	// Same eventual-consistency hazard as the top-level shell: the subflow
	// must be resolvable before any execution is added to it.
	if err := b.awaitSubflowResolvable(ctx, realm, subAlias); err != nil {
		return fmt.Errorf("subflow %s never became resolvable: %w", subAlias, err)
	}

	if err := b.addExecution(ctx, realm, subAlias, b.cfg.CustomAuthenticator, identity.RequirementRequired); err != nil {
		return err
	}

	if original != nil {
		for _, child := range original.children {
			if !child.isSubflow() && child.exec.ProviderID == UsernamePasswordProvider {
				continue
			}
			if err := b.copyNode(ctx, realm, subAlias, tenantKey, child); err != nil {
				return err
			}
		}
	}

	return b.setRequirement(ctx, realm, parentAlias, func(e identity.ExecutionInfo) bool {
		return e.AuthenticationFlow && e.DisplayName == subAlias
	}, requirement)
}

// copyNode replays one baseline node (execution or subflow subtree) into
// destAlias, preserving its requirement level.
func (b *FlowBuilder) copyNode(ctx context.Context, realm, destAlias, tenantKey string, node *flowNode) error {
	if !node.isSubflow() {
		return b.addExecution(ctx, realm, destAlias, node.exec.ProviderID, node.exec.Requirement)
	}

	// Subflow aliases are realm-unique; prefix with the tenant key so the
	// copy cannot collide with the built-in baseline subflows.
	alias := tenantKey + " " + node.exec.DisplayName
	if err := b.admin.AddSubflow(ctx, realm, destAlias, alias, node.exec.DisplayName); err != nil && !identity.IsConflict(err) {
		return fmt.Errorf("copy subflow %s: %w", alias, err)
	}
	if err := b.awaitSubflowResolvable(ctx, realm, alias); err != nil {
		return fmt.Errorf("subflow %s never became resolvable: %w", alias, err)
	}

	for _, child := range node.children {
		if err := b.copyNode(ctx, realm, alias, tenantKey, child); err != nil {
			return err
		}
	}

	return b.setRequirement(ctx, realm, destAlias, func(e identity.ExecutionInfo) bool {
		return e.AuthenticationFlow && e.DisplayName == alias
	}, node.exec.Requirement)
}

// addExecution appends an authenticator to a flow and sets its requirement.
// A duplicate from a previous partial attempt is benign.
func (b *FlowBuilder) addExecution(ctx context.Context, realm, flowAlias, provider, requirement string) error {
	if err := b.admin.AddExecution(ctx, realm, flowAlias, provider); err != nil && !identity.IsConflict(err) {
		return fmt.Errorf("add execution %s to %s: %w", provider, flowAlias, err)
	}
	return b.setRequirement(ctx, realm, flowAlias, func(e identity.ExecutionInfo) bool {
		return !e.AuthenticationFlow && e.ProviderID == provider
	}, requirement)
}

// setRequirement updates the requirement of the first top-level entry of
// flowAlias matching the predicate.
func (b *FlowBuilder) setRequirement(ctx context.Context, realm, flowAlias string, match func(identity.ExecutionInfo) bool, requirement string) error {
	if requirement == "" {
		return nil
	}
	executions, err := b.admin.FlowExecutions(ctx, realm, flowAlias)
	if err != nil {
		return fmt.Errorf("list executions of %s: %w", flowAlias, err)
	}
	for _, e := range executions {
		if e.Level != 0 || !match(e) {
			continue
		}
		if e.Requirement == requirement {
			return nil
		}
		e.Requirement = requirement
		if err := b.admin.UpdateExecution(ctx, realm, flowAlias, e); err != nil {
			return fmt.Errorf("update requirement of %s: %w", flowAlias, err)
		}
		return nil
	}
	return fmt.Errorf("execution to update not found in %s", flowAlias)
}

func (b *FlowBuilder) configureCustomAuthenticator(ctx context.Context, realm, flowAlias, tenantKey string) error {
	if len(b.cfg.AuthenticatorSettings) == 0 {
		return nil
	}

	executions, err := b.admin.FlowExecutions(ctx, realm, flowAlias)
	if err != nil {
		return fmt.Errorf("list executions for config: %w", err)
	}
	for _, e := range executions {
		if e.AuthenticationFlow || e.ProviderID != b.cfg.CustomAuthenticator {
			continue
		}
		return b.admin.CreateExecutionConfig(ctx, realm, e.ID, identity.AuthenticatorConfig{
			Alias:  tenantKey + "-auth-config",
			Config: b.cfg.AuthenticatorSettings,
		})
	}
	return fmt.Errorf("custom authenticator execution not found in %s", flowAlias)
}

func (b *FlowBuilder) bindBrowserFlow(ctx context.Context, realm, flowAlias string) error {
	current, err := b.admin.GetRealm(ctx, realm)
	if err != nil {
		return fmt.Errorf("load realm for flow binding: %w", err)
	}
	current.BrowserFlow = flowAlias
	if err := b.admin.UpdateRealm(ctx, current); err != nil {
		return fmt.Errorf("bind browser flow: %w", err)
	}
	return nil
}

func (b *FlowBuilder) awaitFlowResolvable(ctx context.Context, realm, alias string) error {
	return retry.Until(ctx, b.cfg.Readiness, func(ctx context.Context) error {
		flows, err := b.admin.ListFlows(ctx, realm)
		if err != nil {
			return err
		}
		for _, f := range flows {
			if f.Alias == alias {
				return nil
			}
		}
		return retry.ErrNotReady
	})
}

func (b *FlowBuilder) awaitSubflowResolvable(ctx context.Context, realm, alias string) error {
	return retry.Until(ctx, b.cfg.Readiness, func(ctx context.Context) error {
		// A subflow is resolvable once its executions listing answers.
		if _, err := b.admin.FlowExecutions(ctx, realm, alias); err != nil {
			if identity.IsNotFound(err) {
				return retry.ErrNotReady
			}
			return err
		}
		return nil
	})
}

// buildFlowTree reconstructs the nested flow graph from the provider's flat
// execution listing, where Level encodes nesting depth and order encodes
// display order.
func buildFlowTree(entries []identity.ExecutionInfo) []*flowNode {
	var top []*flowNode
	// stack[i] is the most recent node seen at level i.
	var stack []*flowNode

	for _, e := range entries {
		node := &flowNode{exec: e}
		if e.Level <= 0 {
			top = append(top, node)
			stack = []*flowNode{node}
			continue
		}
		if e.Level > len(stack) {
			// Malformed listing; treat as top level rather than dropping.
			top = append(top, node)
			stack = []*flowNode{node}
			continue
		}
		parent := stack[e.Level-1]
		parent.children = append(parent.children, node)
		stack = append(stack[:e.Level], node)
	}
	return top
}

// subtreeContainsProvider reports whether the node's subtree contains a
// direct execution of the given authenticator.
func subtreeContainsProvider(node *flowNode, provider string) bool {
	for _, child := range node.children {
		if child.isSubflow() {
			if subtreeContainsProvider(child, provider) {
				return true
			}
			continue
		}
		if child.exec.ProviderID == provider {
			return true
		}
	}
	return false
}
