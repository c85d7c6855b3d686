//go:build windows

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

package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func setDACL(t *testing.T, path string, sddl string) {
	t.Helper()
	sd, err := windows.SecurityDescriptorFromString(sddl)
	require.NoError(t, err)
	dacl, _, err := sd.DACL()
	require.NoError(t, err)
	require.NoError(t, windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|
			windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	))
}

func TestKeyFileACLWindows(t *testing.T) {
	tests := []struct {
		sddl    string
		trustee string
	}{
		{sddl: "D:P(A;;GR;;;WD)", trustee: "Everyone"},
		{sddl: "D:P(A;;GR;;;BU)", trustee: "BUILTIN\\Users"},
		{sddl: "D:P(A;;GR;;;AU)", trustee: "Authenticated Users"},
	}
	for _, tc := range tests {
		path := filepath.Join(t.TempDir(), "signer.skey")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
		setDACL(t, path, tc.sddl)
		err := checkKeyFileACL(path)
		require.ErrorIs(t, err, ErrInsecureFileMode, tc.sddl)
		assert.Contains(t, err.Error(), tc.trustee)
	}
}

func TestSaveRestrictsACLWindows(t *testing.T) {
	signer, err := GenerateSigner(nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signer.skey")
	require.NoError(t, signer.Save(path, "test"))
	require.NoError(t, checkKeyFileACL(path))
	loaded, err := LoadSigner(path)
	require.NoError(t, err)
	assert.Equal(t, signer.Identity(), loaded.Identity())
}

func TestCheckDACL(t *testing.T) {
	assert.NoError(t, checkDACL("k", "O:BAD:P(A;;FA;;;SY)(A;;FA;;;BA)"))
	assert.NoError(t, checkDACL("k", "D:(D;;GA;;;WD)(A;;GA;;;OW)"))
	assert.ErrorIs(t, checkDACL("k", "O:BA"), ErrInsecureFileMode)
	assert.ErrorIs(t, checkDACL("k", "D:(A;;GR;;;S-1-1-0)S:(AU;;;;;WD)"), ErrInsecureFileMode)
}
