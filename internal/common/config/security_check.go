package config

import "go.uber.org/zap"

// ProductionWarnings returns the insecure settings a production deployment
// should not run with.
func (c *Config) ProductionWarnings() []string {
	var warnings []string

	if c.JWTSecret == "" {
		warnings = append(warnings, "jwt_secret is empty; login tokens cannot be signed safely")
	}
	if c.LDAP.SkipTLSVerify {
		warnings = append(warnings, "ldap.skip_tls_verify is enabled; directory certificates are not validated")
	}
	if !c.LDAP.UseTLS && !c.LDAP.StartTLS {
		warnings = append(warnings, "directory connection is plaintext; credentials cross the wire unencrypted")
	}
	if c.Sync.SyncPasswords && !c.Auth.Fallback {
		warnings = append(warnings, "sync.sync_passwords is enabled without auth.fallback; local hashes are stored but never used")
	}
	if !c.EnableRateLimit {
		warnings = append(warnings, "rate limiting is disabled on the login endpoint")
	}

	return warnings
}

// LogSecurityWarnings logs actionable security warnings when running in
// production with insecure defaults. Call this at service startup after
// configuration is loaded.
func (c *Config) LogSecurityWarnings(log *zap.Logger) {
	if !c.IsProduction() {
		return
	}

	warnings := c.ProductionWarnings()

	for _, w := range warnings {
		log.Warn("SECURITY", zap.String("warning", w))
	}

	if len(warnings) > 0 {
		log.Warn("SECURITY: production deployment has insecure configuration",
			zap.Int("warning_count", len(warnings)))
	}
}
