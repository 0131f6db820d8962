package service

import (
	"context"
)

// DatabaseProvisioner runs the database saga: create database, dedicated
// user, grants and schema for one tenant, with compensating rollback on step
// failure. Deprovision hard-deletes the database and user.
type DatabaseProvisioner interface {
	Provision(ctx context.Context, req DBProvisionRequest) (DBProvisionResult, error)
	// ApplySchema re-runs the declarative schema on an existing database.
	// No baseline fallback here; that applies during creation only.
	ApplySchema(ctx context.Context, tenantKey string, coords DBProvisionResult) error
	Deprovision(ctx context.Context, tenantKey string) error
}

// DBProvisionRequest drives one database saga run.
type DBProvisionRequest struct {
	TenantKey string
	// ApplySchemaNow applies the declarative schema immediately, falling
	// back to the baseline table set if that collaborator fails. When false
	// only the baseline set is installed.
	ApplySchemaNow bool
}

// DBProvisionResult reports the coordinates of the provisioned database.
type DBProvisionResult struct {
	Host     string
	Port     uint16
	Database string
	Username string
	Password string
	Schema   string
}

// RealmProvisioner runs the identity saga: realm, client scopes, clients,
// roles, theme and the tenant-customized authentication flow. Deprovision
// deletes the realm, which cascade-deletes everything inside it.
type RealmProvisioner interface {
	Provision(ctx context.Context, req RealmProvisionRequest) (RealmProvisionResult, error)
	Deprovision(ctx context.Context, realmName string) error
}

// RealmProvisionRequest drives one identity saga run.
type RealmProvisionRequest struct {
	TenantKey   string
	TenantID    string
	DisplayName string
}

// RealmProvisionResult reports the identity coordinates of the new realm.
type RealmProvisionResult struct {
	RealmName    string
	ClientID     string
	ClientSecret string
}
