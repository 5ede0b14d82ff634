package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTarget() Target {
	return Target{
		Name:         "prod",
		URL:          "https://cloud.example.com/",
		Account:      "acme",
		Tenant:       "DefaultTenant",
		ClientID:     "app-id",
		ClientSecret: "app-secret",
	}
}

func TestTarget_BaseURL_TrimsSlash(t *testing.T) {
	target := validTarget()
	assert.Equal(t, "https://cloud.example.com", target.BaseURL())
}

func TestTarget_OrganizationPath(t *testing.T) {
	target := validTarget()
	assert.Equal(t, "/acme/DefaultTenant", target.OrganizationPath())

	target.Account = ""
	target.Tenant = ""
	assert.Equal(t, "", target.OrganizationPath())
}

func TestTarget_TokenURL(t *testing.T) {
	cloud := validTarget()
	assert.Equal(t, "https://cloud.example.com/identity_/connect/token", cloud.TokenURL())

	standalone := validTarget()
	standalone.Account = ""
	standalone.Tenant = ""
	assert.Equal(t, "https://cloud.example.com/identity/connect/token", standalone.TokenURL())

	override := validTarget()
	override.AuthURL = "https://login.example.com/token/"
	assert.Equal(t, "https://login.example.com/token", override.TokenURL())
}

func TestTarget_ScopeList(t *testing.T) {
	target := validTarget()
	assert.Equal(t,
		[]string{"OR.Jobs", "OR.Execution", "OR.Folders", "OR.Robots", "OR.Machines"},
		target.ScopeList())

	target.Scopes = "OR.Jobs OR.Folders"
	assert.Equal(t, []string{"OR.Jobs", "OR.Folders"}, target.ScopeList())
}

func TestTarget_Validate(t *testing.T) {
	target := validTarget()
	require.NoError(t, target.Validate())

	noURL := validTarget()
	noURL.URL = ""
	assert.Error(t, noURL.Validate())

	badScheme := validTarget()
	badScheme.URL = "ftp://example.com"
	assert.Error(t, badScheme.Validate())

	noSecret := validTarget()
	noSecret.ClientSecret = ""
	assert.Error(t, noSecret.Validate())

	halfOrg := validTarget()
	halfOrg.Tenant = ""
	assert.Error(t, halfOrg.Validate())
}
