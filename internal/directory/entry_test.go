package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryFirst(t *testing.T) {
	entry := NewEntry("cn=jdoe,dc=acme,dc=org", map[string][]string{
		"mail": {"jdoe@acme.org", "john.doe@acme.org"},
		"cn":   {"John Doe"},
	})

	assert.Equal(t, "jdoe@acme.org", entry.First("mail"))
	assert.Equal(t, "John Doe", entry.First("cn"))
	assert.Equal(t, "", entry.First("telephoneNumber"))
}

func TestEntryAccountDisabled(t *testing.T) {
	tests := []struct {
		name     string
		uac      string
		disabled bool
	}{
		{"normal account", "512", false},
		{"disabled account", "514", true},
		{"disabled with password never expires", "66050", true},
		{"missing attribute", "", false},
		{"garbage value", "not-a-number", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := map[string][]string{}
			if tt.uac != "" {
				attrs["userAccountControl"] = []string{tt.uac}
			}
			entry := NewEntry("cn=x,dc=acme,dc=org", attrs)
			assert.Equal(t, tt.disabled, entry.AccountDisabled())
		})
	}
}

func TestEntryRaw(t *testing.T) {
	entry := NewEntry("cn=x,dc=acme,dc=org", map[string][]string{
		"cn": {"X"},
	})
	entry.SetRaw("thumbnailPhoto", []byte{0xff, 0xd8, 0xff})

	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, entry.Raw("thumbnailPhoto"))
	// String attributes fall back to their first value
	assert.Equal(t, []byte("X"), entry.Raw("cn"))
	assert.Nil(t, entry.Raw("objectSid"))
}

func TestQueryAnd(t *testing.T) {
	q := &Query{}
	q.And("(objectClass=inetOrgPerson)")
	assert.Equal(t, "(objectClass=inetOrgPerson)", q.Filter)

	q.And("(uid=jdoe)")
	assert.Equal(t, "(&(objectClass=inetOrgPerson)(uid=jdoe))", q.Filter)
}

func TestConfigDefaults(t *testing.T) {
	ad := Config{Flavor: FlavorActiveDirectory}
	assert.Equal(t, "sAMAccountName", ad.DefaultDiscoverAttribute())
	assert.Equal(t, "objectGUID", ad.GUIDAttribute())
	assert.Equal(t, "(&(objectCategory=person)(objectClass=user))", ad.DefaultObjectFilter())

	ol := Config{Flavor: FlavorOpenLDAP}
	assert.Equal(t, "uid", ol.DefaultDiscoverAttribute())
	assert.Equal(t, "entryUUID", ol.GUIDAttribute())
	assert.Equal(t, "(objectClass=inetOrgPerson)", ol.DefaultObjectFilter())
}

func TestConfigObjectFilter(t *testing.T) {
	cfg := Config{Flavor: FlavorOpenLDAP, UserFilter: "(departmentNumber=42)"}
	assert.Equal(t, "(&(objectClass=inetOrgPerson)(departmentNumber=42))", cfg.ObjectFilter())

	bare := Config{Flavor: FlavorOpenLDAP}
	assert.Equal(t, "(objectClass=inetOrgPerson)", bare.ObjectFilter())
}
