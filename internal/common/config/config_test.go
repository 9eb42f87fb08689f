package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("ldapgate-service")
	require.NoError(t, err)

	assert.Equal(t, "ldapgate-service", cfg.ServiceName)
	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "directory", cfg.Auth.Provider)
	assert.Equal(t, "email", cfg.Auth.UsernameKey)
	assert.Equal(t, "password", cfg.Auth.PasswordKey)
	assert.Equal(t, "dn", cfg.Auth.BindAttribute)
	assert.Equal(t, []string{"deny_trashed"}, cfg.Auth.Rules)
	assert.Equal(t, "openldap", cfg.LDAP.Flavor)
	assert.Equal(t, uint32(500), cfg.LDAP.PageSize)
	assert.Equal(t, map[string]string{"email": "mail", "name": "cn"}, cfg.Sync.Attributes)
	assert.False(t, cfg.Sync.SyncPasswords)
	assert.True(t, cfg.EnableRateLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LDAP_HOST", "ldap.acme.org")
	t.Setenv("LDAPGATE_AUTH_PROVIDER", "local")
	t.Setenv("LDAPGATE_LDAP_FLAVOR", "active_directory")

	cfg, err := Load("ldapgate-service")
	require.NoError(t, err)

	assert.Equal(t, "ldap.acme.org", cfg.LDAP.Host)
	assert.Equal(t, "local", cfg.Auth.Provider)
	assert.Equal(t, "active_directory", cfg.LDAP.Flavor)
}

func TestLoadRejectsInvalidEnums(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("provider", func(t *testing.T) {
		t.Setenv("LDAPGATE_AUTH_PROVIDER", "ldap-magic")
		_, err := Load("ldapgate-service")
		assert.Error(t, err)
	})

	t.Run("flavor", func(t *testing.T) {
		t.Setenv("LDAPGATE_LDAP_FLAVOR", "edirectory")
		_, err := Load("ldapgate-service")
		assert.Error(t, err)
	})
}

func TestHandlerRef(t *testing.T) {
	name, ok := HandlerRef("@photo")
	assert.True(t, ok)
	assert.Equal(t, "photo", name)

	_, ok = HandlerRef("thumbnailPhoto")
	assert.False(t, ok)
}

func TestValidateIdentifiers(t *testing.T) {
	handlers := map[string]bool{"photo": true}
	ruleSet := map[string]bool{"deny_trashed": true}

	cfg := &Config{
		Auth: AuthConfig{
			Rules: []string{"deny_trashed"},
		},
		Sync: SyncConfig{
			Attributes: map[string]string{"email": "mail", "photo": "@photo"},
		},
	}
	require.NoError(t, cfg.ValidateIdentifiers(handlers, ruleSet))

	t.Run("unknown rule", func(t *testing.T) {
		bad := *cfg
		bad.Auth.Rules = []string{"allow_everyone"}
		assert.Error(t, bad.ValidateIdentifiers(handlers, ruleSet))
	})

	t.Run("unknown handler reference", func(t *testing.T) {
		bad := *cfg
		bad.Sync.Attributes = map[string]string{"photo": "@avatar"}
		assert.Error(t, bad.ValidateIdentifiers(handlers, ruleSet))
	})
}

func TestProductionWarnings(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		LDAP:        LDAPConfig{SkipTLSVerify: true},
	}
	warnings := cfg.ProductionWarnings()
	assert.NotEmpty(t, warnings)
}
