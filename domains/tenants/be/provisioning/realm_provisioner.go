package provisioning

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/identity"
)

// IdentityAdmin is the identity-provider administration capability consumed
// by the identity saga and the flow builder. Implemented by identity.Admin.
type IdentityAdmin interface {
	CreateRealm(ctx context.Context, realm identity.RealmRepresentation) error
	UpdateRealm(ctx context.Context, realm identity.RealmRepresentation) error
	GetRealm(ctx context.Context, name string) (identity.RealmRepresentation, error)
	DeleteRealm(ctx context.Context, name string) error
	CreateClientScope(ctx context.Context, realm string, scope identity.ClientScopeRepresentation) error
	CreateClient(ctx context.Context, realm string, client identity.ClientRepresentation) error
	CreateRole(ctx context.Context, realm string, role identity.RoleRepresentation) error
	AuthenticatorProviders(ctx context.Context, realm string) ([]string, error)
	CreateFlow(ctx context.Context, realm string, flow identity.FlowRepresentation) error
	ListFlows(ctx context.Context, realm string) ([]identity.FlowRepresentation, error)
	FlowExecutions(ctx context.Context, realm, flowAlias string) ([]identity.ExecutionInfo, error)
	AddExecution(ctx context.Context, realm, flowAlias, provider string) error
	AddSubflow(ctx context.Context, realm, flowAlias, subflowAlias, description string) error
	UpdateExecution(ctx context.Context, realm, flowAlias string, execution identity.ExecutionInfo) error
	CreateExecutionConfig(ctx context.Context, realm, executionID string, config identity.AuthenticatorConfig) error
}

// RealmProvisionerConfig fixes the per-tenant identity layout.
type RealmProvisionerConfig struct {
	// BaseDomain builds web client redirect URIs ({tenantID}.{BaseDomain}).
	BaseDomain string
	// LoginTheme is applied to every tenant realm.
	LoginTheme string
	// BaselineFlowAlias is the built-in flow the tenant flow is cloned from.
	BaselineFlowAlias string
	// CustomAuthenticator is the provider id substituted for the
	// username/password step. Must be registered with the provider.
	CustomAuthenticator string
	// AuthenticatorSettings is the flat config map written onto the custom
	// authenticator's execution.
	AuthenticatorSettings map[string]string
}

// ClientScopeNames are the client scopes provisioned in every tenant realm.
var ClientScopeNames = []string{"rms-api", "tenant-info"}

// RealmProvisioner runs the identity saga. Any failure after realm creation
// triggers a single compensation: delete the realm, relying on the provider
// to cascade-delete every resource created inside it.
type RealmProvisioner struct {
	admin  IdentityAdmin
	cfg    RealmProvisionerConfig
	logger *zap.Logger
}

// NewRealmProvisioner constructs the identity saga runner.
func NewRealmProvisioner(admin IdentityAdmin, cfg RealmProvisionerConfig, logger *zap.Logger) *RealmProvisioner {
	if admin == nil {
		panic("realm provisioner requires identity admin")
	}
	if cfg.BaselineFlowAlias == "" {
		cfg.BaselineFlowAlias = "browser"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealmProvisioner{admin: admin, cfg: cfg, logger: logger}
}

// Provision executes the ordered identity saga.
func (p *RealmProvisioner) Provision(ctx context.Context, req service.RealmProvisionRequest) (service.RealmProvisionResult, error) {
	realmName := service.RealmNameFor(req.TenantKey)
	webClientID := service.WebClientIDFor(req.TenantKey)
	webClientSecret := uuid.NewString()

	saga := NewSaga("identity", p.logger.With(zap.String("realm", realmName)))

	fail := func(cause error) (service.RealmProvisionResult, error) {
		if saga.Done(StepRealmCreated) {
			saga.Compensate(ctx, "delete realm", func(ctx context.Context) error {
				return p.admin.DeleteRealm(ctx, realmName)
			})
		}
		return service.RealmProvisionResult{}, saga.Fail(cause)
	}

	if err := p.admin.CreateRealm(ctx, identity.RealmRepresentation{
		Realm:       realmName,
		DisplayName: req.DisplayName,
		Enabled:     true,
	}); err != nil {
		return fail(fmt.Errorf("create realm: %w", err))
	}
	saga.Mark(StepRealmCreated)

	for _, name := range ClientScopeNames {
		if err := p.admin.CreateClientScope(ctx, realmName, identity.ClientScopeRepresentation{
			Name:     name,
			Protocol: "openid-connect",
			Attributes: map[string]string{
				"include.in.token.scope": "true",
			},
		}); err != nil {
			return fail(fmt.Errorf("create client scope %s: %w", name, err))
		}
	}
	saga.Mark(StepClientScopesCreated)

	redirectURI := "*"
	if p.cfg.BaseDomain != "" {
		redirectURI = fmt.Sprintf("https://%s.%s/*", req.TenantID, p.cfg.BaseDomain)
	}

	if err := p.admin.CreateClient(ctx, realmName, identity.ClientRepresentation{
		ClientID:            webClientID,
		Name:                req.DisplayName + " Web",
		Secret:              webClientSecret,
		Enabled:             true,
		StandardFlowEnabled: true,
		RedirectURIs:        []string{redirectURI},
		WebOrigins:          []string{"+"},
		DefaultClientScopes: ClientScopeNames,
	}); err != nil {
		return fail(fmt.Errorf("create web client: %w", err))
	}
	saga.Mark(StepWebClientCreated)

	if err := p.admin.CreateClient(ctx, realmName, identity.ClientRepresentation{
		ClientID:                  req.TenantID + "-mobile-app",
		Name:                      req.DisplayName + " Mobile",
		Enabled:                   true,
		PublicClient:              true,
		StandardFlowEnabled:       true,
		DirectAccessGrantsEnabled: true,
		RedirectURIs:              []string{"*"},
		DefaultClientScopes:       ClientScopeNames,
	}); err != nil {
		return fail(fmt.Errorf("create mobile client: %w", err))
	}
	saga.Mark(StepMobileClientCreated)

	if err := p.admin.CreateClient(ctx, realmName, identity.ClientRepresentation{
		ClientID:               req.TenantKey + "-service",
		Name:                   req.DisplayName + " Service Account",
		Secret:                 uuid.NewString(),
		Enabled:                true,
		ServiceAccountsEnabled: true,
	}); err != nil {
		return fail(fmt.Errorf("create service client: %w", err))
	}
	saga.Mark(StepServiceClientCreated)

	for _, role := range service.DefaultRoleNames {
		if err := p.admin.CreateRole(ctx, realmName, identity.RoleRepresentation{
			Name:        role,
			Description: "Predefined tenant role " + role,
		}); err != nil {
			return fail(fmt.Errorf("create role %s: %w", role, err))
		}
	}
	saga.Mark(StepRolesCreated)

	if p.cfg.LoginTheme != "" {
		realm, err := p.admin.GetRealm(ctx, realmName)
		if err != nil {
			return fail(fmt.Errorf("load realm for theme update: %w", err))
		}
		realm.LoginTheme = p.cfg.LoginTheme
		if err := p.admin.UpdateRealm(ctx, realm); err != nil {
			return fail(fmt.Errorf("update realm theme: %w", err))
		}
		saga.Mark(StepThemeUpdated)
	}

	builder := NewFlowBuilder(p.admin, FlowBuilderConfig{
		BaselineFlowAlias:     p.cfg.BaselineFlowAlias,
		CustomAuthenticator:   p.cfg.CustomAuthenticator,
		AuthenticatorSettings: p.cfg.AuthenticatorSettings,
	}, p.logger)
	if err := builder.Build(ctx, realmName, req.TenantKey); err != nil {
		return fail(fmt.Errorf("build authentication flow: %w", err))
	}
	saga.Mark(StepAuthFlowCreated)

	p.logger.Info("identity realm provisioned",
		zap.String("realm", realmName),
		zap.Strings("steps", stepNames(saga.Steps())),
	)

	return service.RealmProvisionResult{
		RealmName:    realmName,
		ClientID:     webClientID,
		ClientSecret: webClientSecret,
	}, nil
}

// Deprovision deletes the realm; the provider cascades to clients, roles,
// scopes and flows.
func (p *RealmProvisioner) Deprovision(ctx context.Context, realmName string) error {
	if err := p.admin.DeleteRealm(ctx, realmName); err != nil {
		if identity.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func stepNames(tags []StepTag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

var _ service.RealmProvisioner = (*RealmProvisioner)(nil)
