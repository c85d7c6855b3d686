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

// Package keystore loads and stores the ed25519 keys that sign governance
// requests
package keystore

import (
	"crypto/ed25519"
	"errors"
	"io"

	"github.com/blinklabs-io/tally/governance"
)

var (
	ErrInsecureFileMode = errors.New("insecure file permissions")
	ErrInvalidKeyFile   = errors.New("invalid key file")
)

// Signer holds a signing key and the identity it signs for
type Signer struct {
	key      ed25519.PrivateKey
	identity governance.Identity
}

// NewSigner wraps an ed25519 private key
func NewSigner(key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyFile
	}
	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKeyFile
	}
	identity, err := governance.IdentityFromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, identity: identity}, nil
}

// GenerateSigner creates a signer with a new random key. A nil rand uses
// crypto/rand.
func GenerateSigner(rand io.Reader) (*Signer, error) {
	_, key, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return NewSigner(key)
}

// LoadSigner reads a signing key file
func LoadSigner(path string) (*Signer, error) {
	kf, err := loadKeyFromFile(path)
	if err != nil {
		return nil, err
	}
	return NewSigner(ed25519.NewKeyFromSeed(kf.Seed))
}

func (s *Signer) Identity() governance.Identity {
	return s.identity
}

func (s *Signer) PrivateKey() ed25519.PrivateKey {
	return s.key
}

func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.key, message)
}

// Save writes the key to path. Existing files are never overwritten.
func (s *Signer) Save(path string, description string) error {
	return writeKeyFile(path, description, s.key.Seed())
}
