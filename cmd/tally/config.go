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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blinklabs-io/tally/internal/sops"
	"github.com/spf13/cobra"
)

// sopsFormat picks the SOPS store from the file extension
func sopsFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return sops.FormatYAML
	}
	return sops.FormatBinary
}

func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(configSopsCommand(
		"encrypt FILE",
		"Encrypt a config file with SOPS and print the result",
		sops.Encrypt,
	))
	cmd.AddCommand(configSopsCommand(
		"decrypt FILE",
		"Decrypt a SOPS config file and print the result",
		sops.Decrypt,
	))
	return cmd
}

func configSopsCommand(
	use string,
	short string,
	fn func([]byte, string) ([]byte, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := fn(data, sopsFormat(args[0]))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
