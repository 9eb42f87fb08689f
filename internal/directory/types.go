// Package directory provides the LDAP client used for credential
// resolution and user import.
package directory

// Config holds directory connection and discovery settings
type Config struct {
	Host          string
	Port          int
	UseTLS        bool
	StartTLS      bool
	SkipTLSVerify bool
	BindDN        string
	BindPassword  string
	BaseDN        string

	// Extra filter ANDed into every user search, e.g.
	// "(memberOf=cn=staff,ou=groups,dc=acme,dc=org)"
	UserFilter string

	PageSize    uint32
	TimeoutSecs int

	// "active_directory" or "openldap"
	Flavor string
}

// Flavor values select attribute defaults
const (
	FlavorActiveDirectory = "active_directory"
	FlavorOpenLDAP        = "openldap"
)

// GUIDAttribute returns the attribute carrying the entry's immutable id
func (c Config) GUIDAttribute() string {
	if c.Flavor == FlavorActiveDirectory {
		return "objectGUID"
	}
	return "entryUUID"
}

// DefaultDiscoverAttribute returns the flavor's login attribute
func (c Config) DefaultDiscoverAttribute() string {
	if c.Flavor == FlavorActiveDirectory {
		return "sAMAccountName"
	}
	return "uid"
}

// DefaultObjectFilter returns the flavor's base user object filter
func (c Config) DefaultObjectFilter() string {
	if c.Flavor == FlavorActiveDirectory {
		return "(&(objectCategory=person)(objectClass=user))"
	}
	return "(objectClass=inetOrgPerson)"
}

// ObjectFilter combines the flavor filter with the configured extra filter
func (c Config) ObjectFilter() string {
	base := c.DefaultObjectFilter()
	if c.UserFilter == "" {
		return base
	}
	return "(&" + base + c.UserFilter + ")"
}

// Query describes a directory search. Scopes mutate it before execution.
type Query struct {
	BaseDN     string
	Filter     string
	Attributes []string
	SizeLimit  int
}

// And narrows the query filter with an additional condition
func (q *Query) And(condition string) {
	if q.Filter == "" {
		q.Filter = condition
		return
	}
	q.Filter = "(&" + q.Filter + condition + ")"
}
