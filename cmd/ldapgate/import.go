package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldapgate/ldapgate/internal/common/config"
	"github.com/ldapgate/ldapgate/internal/common/database"
	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/common/logger"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/rules"
	"github.com/ldapgate/ldapgate/internal/store"
)

type importFlags struct {
	filter  string
	delete  bool
	restore bool
	noLog   bool
	yes     bool
}

func newImportCmd() *cobra.Command {
	flags := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import [user]",
		Short: "Import directory users into the local store",
		Long: `Import runs a directory-wide paginated query (or a point lookup when a
single user is named) and creates or updates the matching local records.
Disabled directory accounts can optionally be soft deleted locally, and
re-enabled accounts restored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := ""
			if len(args) == 1 {
				username = args[0]
			}
			return runImport(cmd.Context(), username, flags)
		},
	}

	cmd.Flags().StringVar(&flags.filter, "filter", "", "extra raw LDAP filter ANDed into the query")
	cmd.Flags().BoolVar(&flags.delete, "delete", false, "soft delete local accounts whose directory entry is disabled")
	cmd.Flags().BoolVar(&flags.restore, "restore", false, "restore soft-deleted local accounts whose entry is enabled again")
	cmd.Flags().BoolVar(&flags.noLog, "no-log", false, "do not log individual import events")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runImport(ctx context.Context, username string, flags *importFlags) error {
	log := logger.New()
	defer log.Sync()

	cfg, err := config.Load("ldapgate")
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if !flags.yes && !confirmImport(username) {
		fmt.Println("Aborted.")
		return nil
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	repo := store.NewPostgresRepository(db.Pool)

	bus := events.NewMemoryBus()
	sub := events.NewLoggingSubscriber(bus, log)
	if flags.noLog {
		sub.Detach(bus)
	}

	dirCfg := directoryConfig(cfg)
	client := directory.NewLDAPClient(dirCfg, log)
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to directory: %w", err)
	}
	defer client.Close()

	scopes, err := directory.BuildScopes(cfg.Auth.Scopes)
	if err != nil {
		return err
	}

	res := resolver.New(client, dirCfg, resolver.Options{
		UsernameKey:       cfg.Auth.UsernameKey,
		PasswordKey:       cfg.Auth.PasswordKey,
		DiscoverAttribute: cfg.Auth.DiscoverAttribute,
		BindAttribute:     cfg.Auth.BindAttribute,
		Scopes:            scopes,
	}, bus, log)

	registry := importer.NewRegistry()
	if err := cfg.ValidateIdentifiers(registry.Names(), nameSet(rules.Names())); err != nil {
		return err
	}

	imp := importer.New(repo, registry, importer.Config{
		DatabaseKey:   cfg.Auth.DatabaseKey,
		Attributes:    cfg.Sync.Attributes,
		SyncPasswords: cfg.Sync.SyncPasswords,
		PasswordKey:   cfg.Auth.PasswordKey,
	}, bus, log)

	engine := importer.NewSyncEngine(res, imp, repo, bus, log)
	result, err := engine.Run(ctx, importer.SyncOptions{
		Username:           username,
		Filter:             flags.filter,
		SoftDeleteDisabled: flags.delete || cfg.Sync.SoftDeleteDisabled,
		RestoreEnabled:     flags.restore || cfg.Sync.RestoreEnabled,
	})
	if err != nil {
		return err
	}

	for _, line := range result.Errors {
		fmt.Fprintln(os.Stderr, "error:", line)
	}
	fmt.Printf("Imported %d users: %d created, %d updated, %d skipped",
		result.Total(), result.Created, result.Updated, result.Skipped)
	if result.Disabled > 0 || result.Restored > 0 {
		fmt.Printf(", %d soft deleted, %d restored", result.Disabled, result.Restored)
	}
	fmt.Printf(" (%s)\n", result.Duration.Round(time.Millisecond))

	// Partial per-record failures are reported above but do not fail the run
	return nil
}

func confirmImport(username string) bool {
	target := "all directory users"
	if username != "" {
		target = fmt.Sprintf("user %q", username)
	}
	fmt.Printf("Import %s into the local store? [y/N] ", target)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func directoryConfig(cfg *config.Config) directory.Config {
	return directory.Config{
		Host:          cfg.LDAP.Host,
		Port:          cfg.LDAP.Port,
		UseTLS:        cfg.LDAP.UseTLS,
		StartTLS:      cfg.LDAP.StartTLS,
		SkipTLSVerify: cfg.LDAP.SkipTLSVerify,
		BindDN:        cfg.LDAP.BindDN,
		BindPassword:  cfg.LDAP.BindPassword,
		BaseDN:        cfg.LDAP.BaseDN,
		UserFilter:    cfg.LDAP.UserFilter,
		PageSize:      cfg.LDAP.PageSize,
		TimeoutSecs:   cfg.LDAP.TimeoutSecs,
		Flavor:        cfg.LDAP.Flavor,
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
