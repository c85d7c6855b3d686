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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blinklabs-io/tally/governance"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

func statusForClass(class governance.ErrorClass) int {
	switch class {
	case governance.ErrorClassAuthorization:
		return http.StatusForbidden
	case governance.ErrorClassStatePrecondition:
		return http.StatusConflict
	case governance.ErrorClassInputValidation:
		return http.StatusBadRequest
	case governance.ErrorClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeGovernanceError maps an engine error to an HTTP error response.
// Internal errors are logged and not exposed to the client.
func (s *Server) writeGovernanceError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	class := governance.ClassOf(err)
	status := statusForClass(class)
	resp := ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    err.Error(),
		Kind:       class.String(),
	}
	var stateErr *governance.ProposalStateError
	if errors.As(err, &stateErr) {
		resp.Status = stateErr.Status.String()
	}
	if class == governance.ErrorClassInternal {
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}
