package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// APIError carries the provider-side status for a failed admin call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity admin API: status %d: %s", e.Status, e.Message)
}

// IsConflict reports whether err is a duplicate-resource conflict. The flow
// builder treats these as benign when re-adding executions.
func IsConflict(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusBadRequest
	}
	return false
}

// IsNotFound reports whether err is a provider-side 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound
	}
	return false
}

// AdminConfig configures the identity admin client.
type AdminConfig struct {
	// BaseURL is the identity provider root, e.g. https://id.rmsphere.io.
	BaseURL string
	// AdminRealm hosts the administrative service account (usually "master").
	AdminRealm string
	// ClientID/ClientSecret authenticate the administrative service account.
	ClientID     string
	ClientSecret string
	// Timeout bounds each admin API call (default 10s).
	Timeout time.Duration
	// RequestsPerSecond throttles admin calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Admin is an HTTP client for the identity provider's realm administration
// API. Calls are synchronous, individually timeouted and rate limited;
// authentication uses the client-credentials grant against the admin realm.
type Admin struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewAdmin builds the admin client. The ctx scopes the token source's
// background refreshes.
func NewAdmin(ctx context.Context, cfg AdminConfig) (*Admin, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity base URL is required")
	}
	if cfg.AdminRealm == "" {
		cfg.AdminRealm = "master"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", baseURL, cfg.AdminRealm),
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Admin{
		baseURL: baseURL,
		client:  cc.Client(ctx),
		limiter: limiter,
		timeout: cfg.Timeout,
	}, nil
}

// IssuerURL returns the OIDC issuer for a realm.
func (a *Admin) IssuerURL(realm string) string {
	return fmt.Sprintf("%s/realms/%s", a.baseURL, realm)
}

// CreateRealm creates a new realm.
func (a *Admin) CreateRealm(ctx context.Context, realm RealmRepresentation) error {
	return a.do(ctx, http.MethodPost, "/admin/realms", realm, nil)
}

// UpdateRealm replaces mutable realm settings (themes, bound flows).
func (a *Admin) UpdateRealm(ctx context.Context, realm RealmRepresentation) error {
	return a.do(ctx, http.MethodPut, "/admin/realms/"+url.PathEscape(realm.Realm), realm, nil)
}

// GetRealm fetches one realm.
func (a *Admin) GetRealm(ctx context.Context, name string) (RealmRepresentation, error) {
	var out RealmRepresentation
	err := a.do(ctx, http.MethodGet, "/admin/realms/"+url.PathEscape(name), nil, &out)
	return out, err
}

// DeleteRealm removes a realm. The provider cascade-deletes every resource
// inside it (clients, roles, scopes, flows).
func (a *Admin) DeleteRealm(ctx context.Context, name string) error {
	return a.do(ctx, http.MethodDelete, "/admin/realms/"+url.PathEscape(name), nil, nil)
}

// CreateClientScope creates a client scope inside a realm.
func (a *Admin) CreateClientScope(ctx context.Context, realm string, scope ClientScopeRepresentation) error {
	return a.do(ctx, http.MethodPost, "/admin/realms/"+url.PathEscape(realm)+"/client-scopes", scope, nil)
}

// CreateClient creates an OAuth client inside a realm.
func (a *Admin) CreateClient(ctx context.Context, realm string, client ClientRepresentation) error {
	return a.do(ctx, http.MethodPost, "/admin/realms/"+url.PathEscape(realm)+"/clients", client, nil)
}

// CreateRole creates a realm role.
func (a *Admin) CreateRole(ctx context.Context, realm string, role RoleRepresentation) error {
	return a.do(ctx, http.MethodPost, "/admin/realms/"+url.PathEscape(realm)+"/roles", role, nil)
}

// AuthenticatorProviders lists the provider ids of every registered
// authenticator in a realm.
func (a *Admin) AuthenticatorProviders(ctx context.Context, realm string) ([]string, error) {
	var raw []struct {
		ID string `json:"id"`
	}
	err := a.do(ctx, http.MethodGet, "/admin/realms/"+url.PathEscape(realm)+"/authentication/authenticator-providers", nil, &raw)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, p := range raw {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// CreateFlow creates a new top-level authentication flow shell.
func (a *Admin) CreateFlow(ctx context.Context, realm string, flow FlowRepresentation) error {
	return a.do(ctx, http.MethodPost, "/admin/realms/"+url.PathEscape(realm)+"/authentication/flows", flow, nil)
}

// ListFlows returns every top-level flow of a realm.
func (a *Admin) ListFlows(ctx context.Context, realm string) ([]FlowRepresentation, error) {
	var out []FlowRepresentation
	err := a.do(ctx, http.MethodGet, "/admin/realms/"+url.PathEscape(realm)+"/authentication/flows", nil, &out)
	return out, err
}

// FlowExecutions returns the flat execution listing of a flow.
func (a *Admin) FlowExecutions(ctx context.Context, realm, flowAlias string) ([]ExecutionInfo, error) {
	var out []ExecutionInfo
	err := a.do(ctx, http.MethodGet, a.executionsPath(realm, flowAlias), nil, &out)
	return out, err
}

// AddExecution appends an authenticator execution to a flow.
func (a *Admin) AddExecution(ctx context.Context, realm, flowAlias, provider string) error {
	payload := map[string]string{"provider": provider}
	return a.do(ctx, http.MethodPost, a.executionsPath(realm, flowAlias)+"/execution", payload, nil)
}

// AddSubflow appends a nested subflow execution to a flow.
func (a *Admin) AddSubflow(ctx context.Context, realm, flowAlias, subflowAlias, description string) error {
	payload := map[string]string{
		"alias":       subflowAlias,
		"type":        "basic-flow",
		"provider":    "registration-page-form",
		"description": description,
	}
	return a.do(ctx, http.MethodPost, a.executionsPath(realm, flowAlias)+"/flow", payload, nil)
}

// UpdateExecution changes one execution of a flow (typically its requirement).
func (a *Admin) UpdateExecution(ctx context.Context, realm, flowAlias string, execution ExecutionInfo) error {
	return a.do(ctx, http.MethodPut, a.executionsPath(realm, flowAlias), execution, nil)
}

// CreateExecutionConfig attaches an authenticator settings map to an execution.
func (a *Admin) CreateExecutionConfig(ctx context.Context, realm, executionID string, config AuthenticatorConfig) error {
	path := "/admin/realms/" + url.PathEscape(realm) + "/authentication/executions/" + url.PathEscape(executionID) + "/config"
	return a.do(ctx, http.MethodPost, path, config, nil)
}

// BindBrowserFlow makes flowAlias the realm's active login flow.
func (a *Admin) BindBrowserFlow(ctx context.Context, realm, flowAlias string) error {
	current, err := a.GetRealm(ctx, realm)
	if err != nil {
		return err
	}
	current.BrowserFlow = flowAlias
	return a.UpdateRealm(ctx, current)
}

func (a *Admin) executionsPath(realm, flowAlias string) string {
	return "/admin/realms/" + url.PathEscape(realm) + "/authentication/flows/" + url.PathEscape(flowAlias) + "/executions"
}

func (a *Admin) do(ctx context.Context, method, path string, body, out any) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
