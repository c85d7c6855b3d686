// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/keystore"
	"github.com/spf13/cobra"
)

const keyDescription = "Tally Governance Signing Key"

// keyPath returns the --key/--out flag value, falling back to the configured
// key file
func keyPath(cmd *cobra.Command, flagName string) (string, error) {
	path, _ := cmd.Flags().GetString(flagName)
	if path != "" {
		return path, nil
	}
	if cfg := config.FromContext(cmd.Context()); cfg != nil && cfg.KeyFile != "" {
		return cfg.KeyFile, nil
	}
	return "", errors.New("no key file specified")
}

func keyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage governance signing keys",
	}
	cmd.AddCommand(keyGenerateCommand())
	cmd.AddCommand(keyShowCommand())
	return cmd
}

func keyGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := keyPath(cmd, "out")
			if err != nil {
				return err
			}
			signer, err := keystore.GenerateSigner(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			if err := signer.Save(path, keyDescription); err != nil {
				return err
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"wrote %s\nidentity: %s\n",
				path,
				signer.Identity(),
			)
			return nil
		},
	}
	cmd.Flags().String("out", "", "path to write the signing key (default from config)")
	return cmd
}

func keyShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the verification key for a signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := keyPath(cmd, "key")
			if err != nil {
				return err
			}
			signer, err := keystore.LoadSigner(path)
			if err != nil {
				return err
			}
			out, err := keystore.VerificationKeyJSON(signer, keyDescription)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().String("key", "", "path to the signing key (default from config)")
	return cmd
}
