package provisioning

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rmsphere/control-plane/platform/go/identity"
)

// fakeIdentity is an in-memory identity provider admin API. Flows are stored
// as real nested objects; FlowExecutions flattens them the way the provider
// reports them.
type fakeIdentity struct {
	mu sync.Mutex

	realms        map[string]identity.RealmRepresentation
	deletedRealms []string
	scopes        map[string][]identity.ClientScopeRepresentation
	clients       map[string][]identity.ClientRepresentation
	roles         map[string][]identity.RoleRepresentation
	providers     []string
	flows         map[string]map[string]*fakeFlow
	configs       map[string]identity.AuthenticatorConfig

	failOn map[string]error
	nextID int
}

type fakeFlow struct {
	rep     identity.FlowRepresentation
	entries []identity.ExecutionInfo
}

func newFakeIdentity(providers ...string) *fakeIdentity {
	return &fakeIdentity{
		realms:    make(map[string]identity.RealmRepresentation),
		scopes:    make(map[string][]identity.ClientScopeRepresentation),
		clients:   make(map[string][]identity.ClientRepresentation),
		roles:     make(map[string][]identity.RoleRepresentation),
		providers: providers,
		flows:     make(map[string]map[string]*fakeFlow),
		configs:   make(map[string]identity.AuthenticatorConfig),
		failOn:    make(map[string]error),
	}
}

func (f *fakeIdentity) id() string {
	f.nextID++
	return fmt.Sprintf("exec-%d", f.nextID)
}

func (f *fakeIdentity) fail(method string) error {
	if err, ok := f.failOn[method]; ok {
		return err
	}
	return nil
}

func (f *fakeIdentity) realmFlows(realm string) map[string]*fakeFlow {
	if f.flows[realm] == nil {
		f.flows[realm] = make(map[string]*fakeFlow)
	}
	return f.flows[realm]
}

// seedFlow installs a flow with the given direct entries; subflow entries
// reference other seeded flows by DisplayName.
func (f *fakeIdentity) seedFlow(realm, alias string, topLevel bool, entries []identity.ExecutionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = f.id()
		}
	}
	f.realmFlows(realm)[alias] = &fakeFlow{
		rep:     identity.FlowRepresentation{Alias: alias, ProviderID: "basic-flow", TopLevel: topLevel, BuiltIn: true},
		entries: entries,
	}
}

func (f *fakeIdentity) CreateRealm(ctx context.Context, realm identity.RealmRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateRealm"); err != nil {
		return err
	}
	if _, ok := f.realms[realm.Realm]; ok {
		return &identity.APIError{Status: http.StatusConflict, Message: "realm exists"}
	}
	f.realms[realm.Realm] = realm
	return nil
}

func (f *fakeIdentity) UpdateRealm(ctx context.Context, realm identity.RealmRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateRealm"); err != nil {
		return err
	}
	if _, ok := f.realms[realm.Realm]; !ok {
		return &identity.APIError{Status: http.StatusNotFound, Message: "no realm"}
	}
	f.realms[realm.Realm] = realm
	return nil
}

func (f *fakeIdentity) GetRealm(ctx context.Context, name string) (identity.RealmRepresentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetRealm"); err != nil {
		return identity.RealmRepresentation{}, err
	}
	realm, ok := f.realms[name]
	if !ok {
		return identity.RealmRepresentation{}, &identity.APIError{Status: http.StatusNotFound, Message: "no realm"}
	}
	return realm, nil
}

func (f *fakeIdentity) DeleteRealm(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteRealm"); err != nil {
		return err
	}
	if _, ok := f.realms[name]; !ok {
		return &identity.APIError{Status: http.StatusNotFound, Message: "no realm"}
	}
	delete(f.realms, name)
	delete(f.flows, name)
	delete(f.scopes, name)
	delete(f.clients, name)
	delete(f.roles, name)
	f.deletedRealms = append(f.deletedRealms, name)
	return nil
}

func (f *fakeIdentity) CreateClientScope(ctx context.Context, realm string, scope identity.ClientScopeRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateClientScope"); err != nil {
		return err
	}
	f.scopes[realm] = append(f.scopes[realm], scope)
	return nil
}

func (f *fakeIdentity) CreateClient(ctx context.Context, realm string, client identity.ClientRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateClient"); err != nil {
		return err
	}
	f.clients[realm] = append(f.clients[realm], client)
	return nil
}

func (f *fakeIdentity) CreateRole(ctx context.Context, realm string, role identity.RoleRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateRole"); err != nil {
		return err
	}
	f.roles[realm] = append(f.roles[realm], role)
	return nil
}

func (f *fakeIdentity) AuthenticatorProviders(ctx context.Context, realm string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AuthenticatorProviders"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.providers...), nil
}

func (f *fakeIdentity) CreateFlow(ctx context.Context, realm string, flow identity.FlowRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateFlow"); err != nil {
		return err
	}
	flows := f.realmFlows(realm)
	if _, ok := flows[flow.Alias]; ok {
		return &identity.APIError{Status: http.StatusConflict, Message: "flow exists"}
	}
	flows[flow.Alias] = &fakeFlow{rep: flow}
	return nil
}

func (f *fakeIdentity) ListFlows(ctx context.Context, realm string) ([]identity.FlowRepresentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListFlows"); err != nil {
		return nil, err
	}
	var out []identity.FlowRepresentation
	for _, flow := range f.realmFlows(realm) {
		if flow.rep.TopLevel {
			out = append(out, flow.rep)
		}
	}
	return out, nil
}

func (f *fakeIdentity) FlowExecutions(ctx context.Context, realm, flowAlias string) ([]identity.ExecutionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("FlowExecutions"); err != nil {
		return nil, err
	}
	flow, ok := f.realmFlows(realm)[flowAlias]
	if !ok {
		return nil, &identity.APIError{Status: http.StatusNotFound, Message: "no flow"}
	}
	var out []identity.ExecutionInfo
	f.flatten(realm, flow, 0, &out)
	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

func (f *fakeIdentity) flatten(realm string, flow *fakeFlow, level int, out *[]identity.ExecutionInfo) {
	for _, e := range flow.entries {
		e.Level = level
		*out = append(*out, e)
		if e.AuthenticationFlow {
			if sub, ok := f.realmFlows(realm)[e.DisplayName]; ok {
				f.flatten(realm, sub, level+1, out)
			}
		}
	}
}

func (f *fakeIdentity) AddExecution(ctx context.Context, realm, flowAlias, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AddExecution"); err != nil {
		return err
	}
	flow, ok := f.realmFlows(realm)[flowAlias]
	if !ok {
		return &identity.APIError{Status: http.StatusNotFound, Message: "no flow"}
	}
	flow.entries = append(flow.entries, identity.ExecutionInfo{
		ID:          f.id(),
		ProviderID:  provider,
		Requirement: identity.RequirementDisabled,
	})
	return nil
}

func (f *fakeIdentity) AddSubflow(ctx context.Context, realm, flowAlias, subflowAlias, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AddSubflow"); err != nil {
		return err
	}
	flows := f.realmFlows(realm)
	parent, ok := flows[flowAlias]
	if !ok {
		return &identity.APIError{Status: http.StatusNotFound, Message: "no flow"}
	}
	if _, ok := flows[subflowAlias]; ok {
		return &identity.APIError{Status: http.StatusConflict, Message: "subflow exists"}
	}
	flows[subflowAlias] = &fakeFlow{
		rep: identity.FlowRepresentation{Alias: subflowAlias, Description: description, ProviderID: "basic-flow"},
	}
	parent.entries = append(parent.entries, identity.ExecutionInfo{
		ID:                 f.id(),
		DisplayName:        subflowAlias,
		AuthenticationFlow: true,
		Requirement:        identity.RequirementDisabled,
	})
	return nil
}

func (f *fakeIdentity) UpdateExecution(ctx context.Context, realm, flowAlias string, execution identity.ExecutionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateExecution"); err != nil {
		return err
	}
	flow, ok := f.realmFlows(realm)[flowAlias]
	if !ok {
		return &identity.APIError{Status: http.StatusNotFound, Message: "no flow"}
	}
	for i, e := range flow.entries {
		if e.ID == execution.ID {
			execution.Level = 0
			flow.entries[i] = execution
			return nil
		}
	}
	return &identity.APIError{Status: http.StatusNotFound, Message: "no execution"}
}

func (f *fakeIdentity) CreateExecutionConfig(ctx context.Context, realm, executionID string, config identity.AuthenticatorConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateExecutionConfig"); err != nil {
		return err
	}
	f.configs[executionID] = config
	return nil
}

var _ IdentityAdmin = (*fakeIdentity)(nil)
