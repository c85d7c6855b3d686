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
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// untrustedTrustees are the SDDL aliases and SIDs of groups that must not be
// granted access to a key file
var untrustedTrustees = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkKeyFileACL reads the DACL of path as SDDL and rejects any allow
// entry for an untrusted group. The security descriptor is never
// converted through unsafe pointers (go.dev/issue/73199).
func checkKeyFileACL(path string) error {
	sd, err := windows.GetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf("failed to get security info for %q: %w", path, err)
	}
	sddl := sd.String()
	if sddl == "" {
		return fmt.Errorf("failed to read security descriptor for %q", path)
	}
	return checkDACL(path, sddl)
}

// NTFS does not allow replacing a file that is held open, so checking by
// name is safe here
func checkOpenFilePermissions(f *os.File) error {
	return checkKeyFileACL(f.Name())
}

func checkDACL(path, sddl string) error {
	idx := strings.Index(sddl, "D:")
	if idx < 0 {
		return fmt.Errorf(
			"key file %q has no DACL: %w",
			path,
			ErrInsecureFileMode,
		)
	}
	dacl := sddl[idx+2:]
	if end := strings.Index(dacl, "S:"); end >= 0 {
		dacl = dacl[:end]
	}
	for {
		start := strings.IndexByte(dacl, '(')
		if start < 0 {
			return nil
		}
		end := strings.IndexByte(dacl[start:], ')')
		if end < 0 {
			return nil
		}
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(dacl[start+1:start+end], ";")
		dacl = dacl[start+end+1:]
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		if name, ok := untrustedTrustees[fields[5]]; ok {
			return fmt.Errorf(
				"key file %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
}

// restrictToOwner replaces the inherited DACL with one granting access to
// the current user only
func restrictToOwner(path string) error {
	var token windows.Token
	if err := windows.OpenProcessToken(
		windows.CurrentProcess(),
		windows.TOKEN_QUERY,
		&token,
	); err != nil {
		return fmt.Errorf("failed to open process token: %w", err)
	}
	defer token.Close()
	tokenUser, err := token.GetTokenUser()
	if err != nil {
		return fmt.Errorf("failed to get token user: %w", err)
	}
	sd, err := windows.SecurityDescriptorFromString(
		fmt.Sprintf("D:P(A;;GA;;;%s)", tokenUser.User.Sid.String()),
	)
	if err != nil {
		return err
	}
	dacl, _, err := sd.DACL()
	if err != nil {
		return err
	}
	if err := windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|
			windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	); err != nil {
		return fmt.Errorf("failed to restrict key file %q: %w", path, err)
	}
	return nil
}
