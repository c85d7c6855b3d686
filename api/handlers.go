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
	"fmt"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/tally/governance"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

func decodeBody(body []byte, dest any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func pathProposalId(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal id: %q", r.PathValue("id"))
	}
	return id, nil
}

func pathIdentity(r *http.Request) (governance.Identity, error) {
	return governance.ParseIdentity(r.PathValue("identity"))
}

func proposalResponse(p *governance.Proposal) ProposalResponse {
	return ProposalResponse{Proposal: p, Key: governance.ProposalKey(p.ID)}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeConfig(w, r, http.StatusOK)
}

// handleInitialize makes the signer the governance admin
func (s *Server) handleInitialize(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	_ []byte,
) {
	if err := s.engine.Initialize(r.Context(), signer); err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	s.writeConfig(w, r, http.StatusCreated)
}

func (s *Server) writeConfig(
	w http.ResponseWriter,
	r *http.Request,
	status int,
) {
	cfg, err := s.engine.GetConfig(r.Context())
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, status, cfg)
}

func (s *Server) handleRegisterUser(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	body []byte,
) {
	var req RegisterUserRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.engine.RegisterUser(
		r.Context(),
		signer,
		req.Authority,
		req.BasePower,
	)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{
		User:           user,
		Key:            governance.UserKey(user.Authority),
		EffectivePower: user.BasePower,
	})
}

func (s *Server) writeUser(
	w http.ResponseWriter,
	r *http.Request,
	authority governance.Identity,
) {
	user, err := s.engine.GetUser(r.Context(), authority)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	power, err := s.engine.EffectivePower(r.Context(), authority)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		User:           user,
		Key:            governance.UserKey(authority),
		EffectivePower: power,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	authority, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeUser(w, r, authority)
}

func (s *Server) handleDelegate(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	body []byte,
) {
	var req DelegateRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Delegate(r.Context(), signer, req.Delegatee); err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	s.writeUser(w, r, signer)
}

func (s *Server) handleUndelegate(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	_ []byte,
) {
	if err := s.engine.Undelegate(r.Context(), signer); err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	s.writeUser(w, r, signer)
}

func (s *Server) handleCreateProposal(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	body []byte,
) {
	var req CreateProposalRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proposal, err := s.engine.CreateProposal(
		r.Context(),
		governance.CreateProposalRequest{
			Proposer:          signer,
			Title:             req.Title,
			Description:       req.Description,
			DurationSeconds:   req.DurationSeconds,
			StartDelaySeconds: req.StartDelaySeconds,
		},
	)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposalResponse(proposal))
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := governance.ProposalQuery{
		Offset:     params.Offset(),
		Limit:      params.Count,
		Descending: params.Descending(),
	}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status, err := governance.ParseProposalStatus(statusParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query.Status = &status
	}
	proposals, err := s.engine.ListProposals(r.Context(), query)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	// Totals are only known without a status filter
	if query.Status == nil {
		if cfg, err := s.engine.GetConfig(r.Context()); err == nil {
			SetPaginationHeaders(w, cfg.ProposalCount, params)
		}
	}
	resp := make([]ProposalResponse, 0, len(proposals))
	for _, proposal := range proposals {
		resp = append(resp, proposalResponse(proposal))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathProposalId(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proposal, err := s.engine.GetProposal(r.Context(), id)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse(proposal))
}

func (s *Server) handleVote(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	body []byte,
) {
	id, err := pathProposalId(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := VoteRequest{Choice: governance.VoteChoice(0xff)}
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.engine.Vote(
		r.Context(),
		governance.VoteRequest{
			Voter:      signer,
			ProposalID: id,
			Choice:     req.Choice,
			Power:      req.Power,
		},
	)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, VoteRecordResponse{
		VoteRecord: record,
		Key:        governance.VoteRecordKey(signer, id),
	})
}

func (s *Server) handleGetVoteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathProposalId(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	voter, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.engine.GetVoteRecord(r.Context(), voter, id)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteRecordResponse{
		VoteRecord: record,
		Key:        governance.VoteRecordKey(voter, id),
	})
}

func (s *Server) handleFinalize(
	w http.ResponseWriter,
	r *http.Request,
	signer governance.Identity,
	_ []byte,
) {
	id, err := pathProposalId(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proposal, err := s.engine.FinalizeProposal(r.Context(), signer, id)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse(proposal))
}

// handleEvents returns journaled events after the given sequence
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var after uint64
	if afterParam := query.Get("after"); afterParam != "" {
		var err error
		after, err = strconv.ParseUint(afterParam, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
	}
	limit := defaultEventsLimit
	if limitParam := query.Get("limit"); limitParam != "" {
		var err error
		limit, err = strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > maxEventsLimit {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
	}
	events, err := s.engine.Events(r.Context(), after, limit)
	if err != nil {
		s.writeGovernanceError(w, r, err)
		return
	}
	resp := EventsResponse{Events: events, LastSeq: after}
	if len(events) > 0 {
		resp.LastSeq = events[len(events)-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}
