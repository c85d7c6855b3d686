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

package api

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blinklabs-io/tally/governance"
)

const (
	HeaderSigner    = "X-Tally-Signer"
	HeaderTimestamp = "X-Tally-Timestamp"
	HeaderSignature = "X-Tally-Signature"
)

var (
	ErrMissingCredentials = errors.New("missing signer credentials")
	ErrStaleSignature     = errors.New("signature timestamp outside allowed skew")
	ErrBadSignature       = errors.New("signature verification failed")
)

// SigningPayload returns the bytes a signer signs for a request:
// METHOD, path, unix timestamp and hex sha256 of the body, newline separated
func SigningPayload(
	method string,
	path string,
	timestamp int64,
	body []byte,
) []byte {
	bodyHash := sha256.Sum256(body)
	return fmt.Appendf(
		nil,
		"%s\n%s\n%d\n%s",
		method,
		path,
		timestamp,
		hex.EncodeToString(bodyHash[:]),
	)
}

// SignRequest sets the signer headers on req. The body must be the exact
// request body.
func SignRequest(
	req *http.Request,
	key ed25519.PrivateKey,
	body []byte,
	now time.Time,
) {
	timestamp := now.Unix()
	pub, _ := key.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(
		key,
		SigningPayload(req.Method, req.URL.Path, timestamp, body),
	)
	req.Header.Set(HeaderSigner, hex.EncodeToString(pub))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
}

// authenticate verifies the signer headers against the request body and
// returns the signer identity
func (s *Server) authenticate(
	r *http.Request,
	body []byte,
) (governance.Identity, error) {
	var signer governance.Identity
	signerHex := r.Header.Get(HeaderSigner)
	timestampStr := r.Header.Get(HeaderTimestamp)
	sigHex := r.Header.Get(HeaderSignature)
	if signerHex == "" || timestampStr == "" || sigHex == "" {
		return signer, ErrMissingCredentials
	}
	signer, err := governance.ParseIdentity(signerHex)
	if err != nil {
		return signer, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return signer, fmt.Errorf("%w: invalid timestamp", ErrBadSignature)
	}
	skew := s.config.Clock().Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.config.SignatureMaxSkew {
		return signer, ErrStaleSignature
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return signer, fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	payload := SigningPayload(r.Method, r.URL.Path, timestamp, body)
	if !ed25519.Verify(ed25519.PublicKey(signer.Bytes()), payload, sig) {
		return signer, ErrBadSignature
	}
	return signer, nil
}

type signedHandlerFunc func(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	body []byte,
)

// signed reads the request body and requires a valid signature before
// calling next
func (s *Server) signed(next signedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(
			http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes),
		)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		signer, err := s.authenticate(r, body)
		if err != nil {
			s.logger.Debug(
				"rejected request signature",
				"path", r.URL.Path,
				"error", err,
			)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := s.replay.check(signer, sigFromHeader(r)); err != nil {
			s.logger.Debug(
				"rejected replayed request",
				"path", r.URL.Path,
				"signer", signer.String(),
			)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		// Handlers decode from the buffered body
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r, signer, body)
	}
}

// sigFromHeader returns the raw signature of a request that already passed
// authenticate
func sigFromHeader(r *http.Request) []byte {
	sig, _ := hex.DecodeString(r.Header.Get(HeaderSignature))
	return sig
}
