// Package identity wraps the identity provider's realm administration REST
// API: realm/client/role/flow CRUD plus per-request client selection.
package identity

// Requirement levels of an authentication execution.
const (
	RequirementRequired    = "REQUIRED"
	RequirementAlternative = "ALTERNATIVE"
	RequirementConditional = "CONDITIONAL"
	RequirementDisabled    = "DISABLED"
)

// RealmRepresentation is the admin-API payload for a realm.
type RealmRepresentation struct {
	Realm       string `json:"realm"`
	DisplayName string `json:"displayName,omitempty"`
	Enabled     bool   `json:"enabled"`
	LoginTheme  string `json:"loginTheme,omitempty"`
	EmailTheme  string `json:"emailTheme,omitempty"`
	BrowserFlow string `json:"browserFlow,omitempty"`
}

// ClientScopeRepresentation is the admin-API payload for a client scope.
type ClientScopeRepresentation struct {
	Name       string            `json:"name"`
	Protocol   string            `json:"protocol"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ClientRepresentation is the admin-API payload for an OAuth client.
type ClientRepresentation struct {
	ClientID                  string   `json:"clientId"`
	Name                      string   `json:"name,omitempty"`
	Secret                    string   `json:"secret,omitempty"`
	Enabled                   bool     `json:"enabled"`
	PublicClient              bool     `json:"publicClient"`
	ServiceAccountsEnabled    bool     `json:"serviceAccountsEnabled"`
	StandardFlowEnabled       bool     `json:"standardFlowEnabled"`
	DirectAccessGrantsEnabled bool     `json:"directAccessGrantsEnabled"`
	RedirectURIs              []string `json:"redirectUris,omitempty"`
	WebOrigins                []string `json:"webOrigins,omitempty"`
	DefaultClientScopes       []string `json:"defaultClientScopes,omitempty"`
}

// RoleRepresentation is the admin-API payload for a realm role.
type RoleRepresentation struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FlowRepresentation describes a top-level authentication flow.
type FlowRepresentation struct {
	ID          string `json:"id,omitempty"`
	Alias       string `json:"alias"`
	Description string `json:"description,omitempty"`
	ProviderID  string `json:"providerId"`
	TopLevel    bool   `json:"topLevel"`
	BuiltIn     bool   `json:"builtIn"`
}

// ExecutionInfo is one entry of a flow's flat execution listing. An entry is
// either a direct authenticator reference (ProviderID set) or a reference to
// a named subflow (AuthenticationFlow true, FlowID set). Level/Index encode
// the entry's position in the flow graph.
type ExecutionInfo struct {
	ID                 string `json:"id"`
	Requirement        string `json:"requirement"`
	DisplayName        string `json:"displayName,omitempty"`
	ProviderID         string `json:"providerId,omitempty"`
	AuthenticationFlow bool   `json:"authenticationFlow,omitempty"`
	FlowID             string `json:"flowId,omitempty"`
	Level              int    `json:"level"`
	Index              int    `json:"index"`
	Configurable       bool   `json:"configurable,omitempty"`
}

// AuthenticatorConfig is the flat settings map attached to one execution.
type AuthenticatorConfig struct {
	Alias  string            `json:"alias"`
	Config map[string]string `json:"config"`
}

// ClientRegistration is the outcome of per-request client selection: which
// OAuth client an authentication attempt should use against which issuer.
type ClientRegistration struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Issuer       string `json:"issuer"`
}
