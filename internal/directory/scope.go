package directory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Scope narrows a directory query before it runs. Scopes are applied in
// the order they are configured.
type Scope interface {
	Name() string
	Apply(q *Query)
}

// AttributePresent keeps entries that carry a value for the attribute
type AttributePresent struct {
	Attribute string
}

func (s AttributePresent) Name() string { return "attribute_present:" + s.Attribute }

func (s AttributePresent) Apply(q *Query) {
	q.And(fmt.Sprintf("(%s=*)", ldap.EscapeFilter(s.Attribute)))
}

// MemberOf keeps entries belonging to the given group
type MemberOf struct {
	GroupDN string
}

func (s MemberOf) Name() string { return "member_of:" + s.GroupDN }

func (s MemberOf) Apply(q *Query) {
	q.And(fmt.Sprintf("(memberOf=%s)", ldap.EscapeFilter(s.GroupDN)))
}

// RawFilter ANDs a preassembled filter into the query. The filter is taken
// verbatim; the operator owns its escaping.
type RawFilter struct {
	Filter string
}

func (s RawFilter) Name() string { return "raw_filter" }

func (s RawFilter) Apply(q *Query) {
	q.And(s.Filter)
}

// BuildScopes parses configured scope identifiers. Supported forms are
// "attr:<attribute>", "member_of:<group dn>" and "filter:<raw filter>".
// Unknown identifiers abort startup.
func BuildScopes(specs []string) ([]Scope, error) {
	scopes := make([]Scope, 0, len(specs))
	for _, spec := range specs {
		kind, arg, found := strings.Cut(spec, ":")
		if !found || arg == "" {
			return nil, fmt.Errorf("invalid query scope %q", spec)
		}
		switch kind {
		case "attr":
			scopes = append(scopes, AttributePresent{Attribute: arg})
		case "member_of":
			scopes = append(scopes, MemberOf{GroupDN: arg})
		case "filter":
			scopes = append(scopes, RawFilter{Filter: arg})
		default:
			return nil, fmt.Errorf("unknown query scope kind %q in %q", kind, spec)
		}
	}
	return scopes, nil
}
