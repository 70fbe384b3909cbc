package main

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morezero/federation-core/pkg/webkey"
)

func keygenCmd() *cobra.Command {
	var keyID string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA-2048 actor keypair and print its JWK forms",
		Long: `keygen produces the ACTOR_PRIVATE_KEY_JWK value serve reads to sign
outbound requests on a demo actor's behalf. The public half never needs to be
configured separately; it is derived from the private key at request time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			private, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			id := keyID
			if id == "" {
				id = "main-key"
			}

			privateJWK, err := webkey.ExportPrivate(id, private)
			if err != nil {
				return fmt.Errorf("export private key: %w", err)
			}
			privateJSON, err := webkey.MarshalKey(privateJWK)
			if err != nil {
				return fmt.Errorf("marshal private key: %w", err)
			}

			publicJWK, err := webkey.ExportPublic(&private.PublicKey)
			if err != nil {
				return fmt.Errorf("export public key: %w", err)
			}
			publicJSON, err := webkey.MarshalKey(publicJWK)
			if err != nil {
				return fmt.Errorf("marshal public key: %w", err)
			}

			fmt.Println("ACTOR_PRIVATE_KEY_JWK:")
			fmt.Println(string(privateJSON))
			fmt.Println()
			fmt.Println("public key (for reference, not needed in config):")
			fmt.Println(string(publicJSON))
			return nil
		},
	}

	cmd.Flags().StringVar(&keyID, "key-id", "", "key id fragment to embed in the JWK (default \"main-key\")")
	return cmd
}
