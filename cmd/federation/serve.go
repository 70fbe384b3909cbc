package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/morezero/federation-core/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the federation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := server.Run(); err != nil {
				log.Fatalf("federation: %v", err)
			}
			return nil
		},
	}
}
