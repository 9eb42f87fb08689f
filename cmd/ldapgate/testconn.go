package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldapgate/ldapgate/internal/common/config"
	"github.com/ldapgate/ldapgate/internal/common/logger"
	"github.com/ldapgate/ldapgate/internal/directory"
)

func newTestConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Verify the directory can be reached with the configured bind",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()
			defer log.Sync()

			cfg, err := config.Load("ldapgate")
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			dirCfg := directoryConfig(cfg)
			client := directory.NewLDAPClient(dirCfg, log)

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			start := time.Now()
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connect to %s:%d: %w", dirCfg.Host, dirCfg.Port, err)
			}
			defer client.Close()

			if err := client.TestConnection(ctx); err != nil {
				return fmt.Errorf("search base %q: %w", dirCfg.BaseDN, err)
			}

			fmt.Printf("Connected to %s:%d, base %q reachable (%s)\n",
				dirCfg.Host, dirCfg.Port, dirCfg.BaseDN, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
