package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "federation",
		Short: "ActivityPub federation core",
		Long:  `federation-core is a WebFinger/NodeInfo/ActivityPub registry and outbound delivery queue.`,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		keygenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "federation: %v\n", err)
		os.Exit(1)
	}
}
