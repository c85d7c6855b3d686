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

package sops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptRequiresMasterKey(t *testing.T) {
	t.Setenv(EnvGCPKMSResourceID, "")
	t.Setenv(EnvAWSKMSKeyARNs, "")
	_, err := Encrypt([]byte("apiPort: 8080\n"), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvGCPKMSResourceID)
}

func TestEncryptRejectsEncrypted(t *testing.T) {
	_, err := Encrypt([]byte("sops:\n  version: 3.11.0\n"), FormatYAML)
	require.ErrorIs(t, err, ErrAlreadyEncrypted)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Encrypt([]byte("{}"), "toml")
	require.Error(t, err)
	_, err = Decrypt([]byte("{}"), "toml")
	require.Error(t, err)
}

func TestDecryptPlainDocumentFails(t *testing.T) {
	_, err := Decrypt([]byte("apiPort: 8080\n"), FormatYAML)
	require.Error(t, err)
}
