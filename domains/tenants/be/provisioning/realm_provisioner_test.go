package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/identity"
)

func newRealmProvisioner(fake *fakeIdentity) *RealmProvisioner {
	p := NewRealmProvisioner(fake, RealmProvisionerConfig{
		BaseDomain:          "rmsphere.io",
		LoginTheme:          "rmsphere",
		CustomAuthenticator: testAuthenticator,
	}, nil)
	return p
}

func TestRealmProvisionerHappyPath(t *testing.T) {
	ctx := context.Background()
	fake := newFakeIdentity(testAuthenticator)
	seedBrowserBaseline(fake, "acme_realm")

	// The readiness polls are instantaneous against the fake, so the default
	// policy never actually sleeps.
	result, err := newRealmProvisioner(fake).Provision(ctx, service.RealmProvisionRequest{
		TenantKey:   "acme",
		TenantID:    "acme",
		DisplayName: "Acme Restaurants",
	})
	require.NoError(t, err)

	require.Equal(t, "acme_realm", result.RealmName)
	require.Equal(t, "acme-web-app", result.ClientID)
	require.NotEmpty(t, result.ClientSecret)

	realm, err := fake.GetRealm(ctx, "acme_realm")
	require.NoError(t, err)
	require.Equal(t, "rmsphere", realm.LoginTheme)
	require.Equal(t, "acme-browser", realm.BrowserFlow)

	require.Len(t, fake.scopes["acme_realm"], len(ClientScopeNames))
	require.Len(t, fake.roles["acme_realm"], len(service.DefaultRoleNames))

	clients := fake.clients["acme_realm"]
	require.Len(t, clients, 3)
	byID := make(map[string]identity.ClientRepresentation, len(clients))
	for _, c := range clients {
		byID[c.ClientID] = c
	}

	web := byID["acme-web-app"]
	require.Equal(t, result.ClientSecret, web.Secret)
	require.Equal(t, []string{"https://acme.rmsphere.io/*"}, web.RedirectURIs)
	require.False(t, web.PublicClient)

	mobile := byID["acme-mobile-app"]
	require.True(t, mobile.PublicClient)
	require.Empty(t, mobile.Secret)
	require.True(t, mobile.DirectAccessGrantsEnabled)

	svc := byID["acme-service"]
	require.True(t, svc.ServiceAccountsEnabled)
	require.NotEmpty(t, svc.Secret)
}

func TestRealmProvisionerDeletesRealmOnFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeIdentity(testAuthenticator)
	seedBrowserBaseline(fake, "fail_realm")
	fake.failOn["CreateRole"] = errors.New("role quota exceeded")

	_, err := newRealmProvisioner(fake).Provision(ctx, service.RealmProvisionRequest{
		TenantKey:   "fail",
		TenantID:    "fail",
		DisplayName: "Fail Co",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "create role")

	// Single compensation: the realm is gone and nothing inside survives.
	require.Equal(t, []string{"fail_realm"}, fake.deletedRealms)
	_, err = fake.GetRealm(ctx, "fail_realm")
	require.True(t, identity.IsNotFound(err))
}

func TestRealmProvisionerFailsBeforeRealmWithoutCompensation(t *testing.T) {
	ctx := context.Background()
	fake := newFakeIdentity(testAuthenticator)
	fake.failOn["CreateRealm"] = errors.New("provider unavailable")

	_, err := newRealmProvisioner(fake).Provision(ctx, service.RealmProvisionRequest{
		TenantKey: "acme",
		TenantID:  "acme",
	})
	require.Error(t, err)
	require.Empty(t, fake.deletedRealms)
}

func TestRealmProvisionerDeprovisionToleratesMissingRealm(t *testing.T) {
	fake := newFakeIdentity(testAuthenticator)
	require.NoError(t, newRealmProvisioner(fake).Deprovision(context.Background(), "missing_realm"))
}

func TestProvisionWithoutThemeSkipsRealmUpdate(t *testing.T) {
	ctx := context.Background()
	fake := newFakeIdentity(testAuthenticator)
	seedBrowserBaseline(fake, "acme_realm")

	core, logs := observer.New(zap.InfoLevel)
	p := NewRealmProvisioner(fake, RealmProvisionerConfig{
		BaseDomain:          "rmsphere.io",
		CustomAuthenticator: testAuthenticator,
	}, zap.New(core))

	_, err := p.Provision(ctx, service.RealmProvisionRequest{
		TenantKey:   "acme",
		TenantID:    "acme",
		DisplayName: "Acme Restaurants",
	})
	require.NoError(t, err)

	// No theme configured: the realm keeps its default, while the flow bind
	// still runs.
	realm, err := fake.GetRealm(ctx, "acme_realm")
	require.NoError(t, err)
	require.Empty(t, realm.LoginTheme)
	require.Equal(t, "acme-browser", realm.BrowserFlow)

	// The ledger records only steps that executed.
	done := logs.FilterMessage("identity realm provisioned").All()
	require.Len(t, done, 1)
	steps := done[0].ContextMap()["steps"]
	require.NotContains(t, steps, string(StepThemeUpdated))
	require.Contains(t, steps, string(StepAuthFlowCreated))
}
