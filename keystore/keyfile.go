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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	KeyFileType          = "TallySigningKey_ed25519"
	VerificationFileType = "TallyVerificationKey_ed25519"
)

// keyFileEnvelope is the JSON structure of a key file
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	KeyHex      string `json:"keyHex"`
}

type loadedKey struct {
	Description string
	Seed        []byte
}

// loadKeyFromFile loads a signing key file. It returns ErrInsecureFileMode
// if the file is accessible by anyone but its owner.
//
// Permissions are checked on the open handle to avoid a race between the
// check and the read.
func loadKeyFromFile(path string) (*loadedKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}

	// Key files are a few hundred bytes
	const maxKeyFileSize = 64 << 10
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	key, err := parseKeyEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

func parseKeyEnvelope(fileBytes []byte) (*loadedKey, error) {
	var env keyFileEnvelope
	if err := json.Unmarshal(fileBytes, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFile, err)
	}
	if env.Type != KeyFileType {
		return nil, fmt.Errorf(
			"%w: unknown key type %q",
			ErrInvalidKeyFile,
			env.Type,
		)
	}
	seed, err := hex.DecodeString(env.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: could not decode key from hex", ErrInvalidKeyFile)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf(
			"%w: expected 32 key bytes, got %d",
			ErrInvalidKeyFile,
			len(seed),
		)
	}
	return &loadedKey{Description: env.Description, Seed: seed}, nil
}

// writeKeyFile creates a new key file readable only by its owner
func writeKeyFile(path string, description string, seed []byte) error {
	data, err := json.MarshalIndent(
		keyFileEnvelope{
			Type:        KeyFileType,
			Description: description,
			KeyHex:      hex.EncodeToString(seed),
		},
		"",
		"    ",
	)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	_, writeErr := f.Write(append(data, '\n'))
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	if err := restrictToOwner(path); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// VerificationKeyJSON returns the public half of a signer in key file form
func VerificationKeyJSON(s *Signer, description string) ([]byte, error) {
	return json.MarshalIndent(
		keyFileEnvelope{
			Type:        VerificationFileType,
			Description: description,
			KeyHex:      s.Identity().String(),
		},
		"",
		"    ",
	)
}
