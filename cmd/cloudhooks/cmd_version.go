package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assetline/cloudhooks/internal/db"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and expected schema version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", db.SchemaVersion())
		},
	}
}
