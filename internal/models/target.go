package models

import (
	"errors"
	"fmt"
	"strings"
)

// Target describes one Orchestrator instance and the application credentials
// used to reach it. Cloud-style targets set Account and Tenant; standalone
// installs leave both empty and expose /odata at the root.
type Target struct {
	Name         string `json:"name" yaml:"name"`
	URL          string `json:"url" yaml:"url"`
	Account      string `json:"account" yaml:"account"`
	Tenant       string `json:"tenant" yaml:"tenant"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"-" yaml:"client_secret"`
	Scopes       string `json:"scopes" yaml:"scopes"`
	AuthURL      string `json:"auth_url" yaml:"auth_url"` // optional token endpoint override
	Insecure     bool   `json:"insecure" yaml:"insecure"` // skip TLS verification
	CACert       string `json:"-" yaml:"ca_cert"`         // PEM bundle for private CAs
}

// DefaultScopes is the scope set required for the job trigger flow.
const DefaultScopes = "OR.Jobs OR.Execution OR.Folders OR.Robots OR.Machines"

// BaseURL returns the target URL without a trailing slash.
func (t *Target) BaseURL() string {
	return strings.TrimRight(t.URL, "/")
}

// OrganizationPath returns the "/{account}/{tenant}" segment for cloud-style
// targets, or "" for standalone installs.
func (t *Target) OrganizationPath() string {
	if t.Account == "" || t.Tenant == "" {
		return ""
	}
	return "/" + t.Account + "/" + t.Tenant
}

// TokenURL returns the OAuth2 token endpoint for this target. An explicit
// AuthURL wins; otherwise cloud-style targets use the shared identity
// service and standalone targets the local one.
func (t *Target) TokenURL() string {
	if t.AuthURL != "" {
		return strings.TrimRight(t.AuthURL, "/")
	}
	if t.OrganizationPath() != "" {
		return t.BaseURL() + "/identity_/connect/token"
	}
	return t.BaseURL() + "/identity/connect/token"
}

// ScopeList splits the space-separated scope string.
func (t *Target) ScopeList() []string {
	scopes := t.Scopes
	if strings.TrimSpace(scopes) == "" {
		scopes = DefaultScopes
	}
	return strings.Fields(scopes)
}

// Validate checks the fields required to authenticate and call the API.
func (t *Target) Validate() error {
	if strings.TrimSpace(t.URL) == "" {
		return errors.New("target URL is required")
	}
	if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
		return fmt.Errorf("target URL %q must be http(s)", t.URL)
	}
	if t.ClientID == "" || t.ClientSecret == "" {
		return errors.New("client id and secret are required")
	}
	if (t.Account == "") != (t.Tenant == "") {
		return errors.New("account and tenant must be set together")
	}
	return nil
}
