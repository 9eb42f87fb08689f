package directory

import (
	"context"
	"strings"
)

// FakeClient is an in-memory Client for tests and local development.
// Filter matching is simplistic: an entry matches when every
// "(attr=value)" pair in the filter matches one of its values, with
// "*" matching presence.
type FakeClient struct {
	Entries []*Entry

	// Passwords maps bind DN to the accepted password
	Passwords map[string]string

	// ConnectErr and SearchErr force failures
	ConnectErr error
	SearchErr  error

	BindCalls   []string
	SearchCalls []Query

	connected bool
}

// NewFakeClient creates an empty fake directory
func NewFakeClient() *FakeClient {
	return &FakeClient{Passwords: make(map[string]string)}
}

// AddEntry registers an entry with an accepted password
func (f *FakeClient) AddEntry(e *Entry, password string) {
	f.Entries = append(f.Entries, e)
	if password != "" {
		f.Passwords[e.DN] = password
	}
}

func (f *FakeClient) Connect(ctx context.Context) error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *FakeClient) Close() error {
	f.connected = false
	return nil
}

func (f *FakeClient) Search(ctx context.Context, query Query) ([]*Entry, error) {
	f.SearchCalls = append(f.SearchCalls, query)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}

	var matched []*Entry
	for _, e := range f.Entries {
		if matchesFilter(e, query.Filter) {
			matched = append(matched, e)
			if query.SizeLimit > 0 && len(matched) == query.SizeLimit {
				break
			}
		}
	}
	return matched, nil
}

func (f *FakeClient) Bind(ctx context.Context, bindDN, password string) error {
	f.BindCalls = append(f.BindCalls, bindDN)
	if password == "" {
		return ErrInvalidCredentials
	}
	if want, ok := f.Passwords[bindDN]; ok && want == password {
		return nil
	}
	return ErrInvalidCredentials
}

func (f *FakeClient) FindByGUID(ctx context.Context, guid string) (*Entry, error) {
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	for _, e := range f.Entries {
		if e.ObjectGUID == guid {
			return e, nil
		}
	}
	return nil, nil
}

func matchesFilter(e *Entry, filter string) bool {
	if filter == "" {
		return true
	}
	for _, cond := range extractPairs(filter) {
		if !matchesPair(e, cond[0], cond[1]) {
			return false
		}
	}
	return true
}

// extractPairs pulls every "(attr=value)" pair out of a filter, ignoring
// the surrounding boolean structure. Enough for the filters the resolver
// and sync engine produce.
func extractPairs(filter string) [][2]string {
	var pairs [][2]string
	depth := []int{}
	for i := 0; i < len(filter); i++ {
		if filter[i] == '(' {
			depth = append(depth, i)
		}
		if filter[i] == ')' && len(depth) > 0 {
			start := depth[len(depth)-1]
			depth = depth[:len(depth)-1]
			inner := filter[start+1 : i]
			if inner == "" || inner[0] == '&' || inner[0] == '|' || inner[0] == '!' {
				continue
			}
			if eq := strings.Index(inner, "="); eq > 0 {
				pairs = append(pairs, [2]string{inner[:eq], inner[eq+1:]})
			}
		}
	}
	return pairs
}

func matchesPair(e *Entry, attr, value string) bool {
	// Object class conditions are structural, every fake entry passes
	if strings.EqualFold(attr, "objectClass") || strings.EqualFold(attr, "objectCategory") {
		return true
	}
	vals := e.Values(attr)
	if value == "*" {
		return len(vals) > 0
	}
	for _, v := range vals {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
