package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/till/internal/config"
	"github.com/hyperengineering/till/internal/remote/mysql"
	"github.com/hyperengineering/till/internal/remote/postgres"
)

var schemaDriver string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the DDL the remote database must provide",
	Long: "Print the tables the till expects in the remote database. " +
		"The till never migrates the remote store; apply this with your own tooling.",
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaDriver, "driver", config.DriverPostgres,
		"Remote driver: postgres or mysql")
}

func runSchema(cmd *cobra.Command, args []string) error {
	switch schemaDriver {
	case config.DriverPostgres:
		fmt.Fprint(cmd.OutOrStdout(), postgres.Schema)
	case config.DriverMySQL:
		fmt.Fprint(cmd.OutOrStdout(), mysql.Schema)
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", schemaDriver, config.DriverPostgres, config.DriverMySQL)
	}
	return nil
}
