package importer

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"

	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/store"
)

// Handler transforms one directory attribute into local user state. A
// handler error is fatal for the record being imported; a batch run logs
// it and moves on.
type Handler func(entry *directory.Entry, user *store.User) error

// Registry holds the attribute handlers a sync mapping may reference.
// Names are validated against it when configuration loads, so a lookup
// miss at import time cannot happen through config.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a registry preloaded with the built-in handlers
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.handlers["photo"] = photoHandler
	r.handlers["sid"] = sidHandler
	r.handlers["memberships"] = membershipsHandler
	return r
}

// Register adds a handler under a unique name
func (r *Registry) Register(name string, h Handler) error {
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("attribute handler %q is already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler registered under name
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the set of registered handler names
func (r *Registry) Names() map[string]bool {
	out := make(map[string]bool, len(r.handlers))
	for name := range r.handlers {
		out[name] = true
	}
	return out
}

// photoHandler stores the entry's thumbnail photo as base64
func photoHandler(entry *directory.Entry, user *store.User) error {
	raw := entry.Raw("thumbnailPhoto")
	if len(raw) == 0 {
		return nil
	}
	user.Attributes["photo"] = base64.StdEncoding.EncodeToString(raw)
	return nil
}

// sidHandler decodes the binary Active Directory objectSid
func sidHandler(entry *directory.Entry, user *store.User) error {
	raw := entry.Raw("objectSid")
	if len(raw) == 0 {
		return nil
	}
	// revision byte + sub-authority count + 6-byte authority
	if len(raw) < 8 {
		return fmt.Errorf("objectSid is %d bytes, too short to decode", len(raw))
	}
	sid := objectsid.Decode(raw)
	user.Attributes["sid"] = sid.String()
	return nil
}

// membershipsHandler records the entry's group DNs
func membershipsHandler(entry *directory.Entry, user *store.User) error {
	groups := entry.Values("memberOf")
	if len(groups) == 0 {
		return nil
	}
	user.Attributes["memberships"] = strings.Join(groups, ";")
	return nil
}
