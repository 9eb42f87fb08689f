package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// ErrInvalidCredentials indicates the directory rejected a user bind
var ErrInvalidCredentials = errors.New("directory rejected the credentials")

// ErrNotConnected indicates a search was attempted before Connect
var ErrNotConnected = errors.New("directory client is not connected")

// LDAPClient implements Client over go-ldap
type LDAPClient struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	conn *ldap.Conn
}

// NewLDAPClient creates a directory client. Connect must be called before
// Search or FindByGUID.
func NewLDAPClient(cfg Config, logger *zap.Logger) *LDAPClient {
	return &LDAPClient{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "ldap-client")),
	}
}

// Connect establishes the service connection with TLS/StartTLS and binds
func (c *LDAPClient) Connect(ctx context.Context) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
		conn.Close()
		return fmt.Errorf("service bind failed: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	return nil
}

// Close releases the service connection
func (c *LDAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

func (c *LDAPClient) dial() (*ldap.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.cfg.SkipTLSVerify,
		ServerName:         c.cfg.Host,
	}

	var conn *ldap.Conn
	var err error

	if c.cfg.UseTLS {
		conn, err = ldap.DialTLS("tcp", addr, tlsConfig)
	} else {
		conn, err = ldap.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server %s: %w", addr, err)
	}

	if c.cfg.StartTLS && !c.cfg.UseTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}

	if c.cfg.TimeoutSecs > 0 {
		conn.SetTimeout(time.Duration(c.cfg.TimeoutSecs) * time.Second)
	}

	return conn, nil
}

// Search runs a paged search and returns detached entries
func (c *LDAPClient) Search(ctx context.Context, query Query) ([]*Entry, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	baseDN := query.BaseDN
	if baseDN == "" {
		baseDN = c.cfg.BaseDN
	}

	pageSize := c.cfg.PageSize
	if pageSize == 0 {
		pageSize = 500
	}

	searchReq := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		query.SizeLimit, 0, false,
		query.Filter,
		query.Attributes,
		[]ldap.Control{ldap.NewControlPaging(pageSize)},
	)

	guidAttr := c.cfg.GUIDAttribute()
	var entries []*Entry

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := conn.Search(searchReq)
		if err != nil {
			return nil, fmt.Errorf("LDAP search failed: %w", err)
		}

		for _, le := range result.Entries {
			entries = append(entries, entryFrom(le, guidAttr))
		}

		pagingControl := ldap.FindControl(result.Controls, ldap.ControlTypePaging)
		if pagingControl == nil {
			break
		}

		paging, ok := pagingControl.(*ldap.ControlPaging)
		if !ok || len(paging.Cookie) == 0 {
			break
		}

		// Set the cookie for next page
		searchReq.Controls = []ldap.Control{ldap.NewControlPaging(pageSize)}
		searchReq.Controls[0].(*ldap.ControlPaging).SetCookie(paging.Cookie)
	}

	c.logger.Debug("LDAP search completed",
		zap.String("baseDN", baseDN),
		zap.String("filter", query.Filter),
		zap.Int("results", len(entries)),
	)

	return entries, nil
}

// Bind verifies credentials on a fresh connection
func (c *LDAPClient) Bind(ctx context.Context, bindDN, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// go-ldap treats an empty password bind as anonymous and succeeds,
	// which would let anyone in
	if password == "" {
		return ErrInvalidCredentials
	}

	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Bind(bindDN, password); err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && ldapErr.ResultCode == ldap.LDAPResultInvalidCredentials {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("user bind failed: %w", err)
	}

	return nil
}

// FindByGUID locates a single entry by its immutable identifier
func (c *LDAPClient) FindByGUID(ctx context.Context, guid string) (*Entry, error) {
	filter, err := c.cfg.GUIDFilter(guid)
	if err != nil {
		return nil, err
	}

	entries, err := c.Search(ctx, Query{
		Filter:     filter,
		Attributes: []string{"*", c.cfg.GUIDAttribute()},
		SizeLimit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// TestConnection verifies connectivity, bind, and a base search
func (c *LDAPClient) TestConnection(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	searchReq := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"dn"},
		nil,
	)

	if _, err := conn.Search(searchReq); err != nil {
		return fmt.Errorf("test search failed: %w", err)
	}

	c.logger.Info("LDAP connection test successful", zap.String("host", c.cfg.Host))
	return nil
}
