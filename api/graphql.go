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
	"errors"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/tally/governance"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

// 64-bit quantities are exposed as decimal strings since graphql.Int is 32-bit

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func i64(v int64) string {
	return strconv.FormatInt(v, 10)
}

var configType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Config",
	Fields: graphql.Fields{
		"admin":          &graphql.Field{Type: graphql.String},
		"proposalCount":  &graphql.Field{Type: graphql.String},
		"totalBasePower": &graphql.Field{Type: graphql.String},
		"createdAt":      &graphql.Field{Type: graphql.String},
	},
})

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"authority":      &graphql.Field{Type: graphql.String},
		"key":            &graphql.Field{Type: graphql.String},
		"basePower":      &graphql.Field{Type: graphql.String},
		"effectivePower": &graphql.Field{Type: graphql.String},
		"reputation":     &graphql.Field{Type: graphql.String},
		"lastVoteTime":   &graphql.Field{Type: graphql.String},
		"registeredAt":   &graphql.Field{Type: graphql.String},
		"delegatedTo":    &graphql.Field{Type: graphql.String},
	},
})

var proposalType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Proposal",
	Fields: graphql.Fields{
		"id":          &graphql.Field{Type: graphql.String},
		"key":         &graphql.Field{Type: graphql.String},
		"title":       &graphql.Field{Type: graphql.String},
		"description": &graphql.Field{Type: graphql.String},
		"creator":     &graphql.Field{Type: graphql.String},
		"yesVotes":    &graphql.Field{Type: graphql.String},
		"noVotes":     &graphql.Field{Type: graphql.String},
		"status":      &graphql.Field{Type: graphql.String},
		"startTime":   &graphql.Field{Type: graphql.String},
		"deadline":    &graphql.Field{Type: graphql.String},
		"finalizedAt": &graphql.Field{Type: graphql.String},
	},
})

var voteRecordType = graphql.NewObject(graphql.ObjectConfig{
	Name: "VoteRecord",
	Fields: graphql.Fields{
		"voter":      &graphql.Field{Type: graphql.String},
		"proposalId": &graphql.Field{Type: graphql.String},
		"key":        &graphql.Field{Type: graphql.String},
		"hasVoted":   &graphql.Field{Type: graphql.Boolean},
		"choice":     &graphql.Field{Type: graphql.String},
		"weight":     &graphql.Field{Type: graphql.String},
		"votedAt":    &graphql.Field{Type: graphql.String},
	},
})

func configObject(c *governance.Config) map[string]any {
	return map[string]any{
		"admin":          c.Admin.String(),
		"proposalCount":  u64(c.ProposalCount),
		"totalBasePower": u64(c.TotalBasePower),
		"createdAt":      i64(c.CreatedAt),
	}
}

func userObject(u *governance.User, effectivePower uint64) map[string]any {
	ret := map[string]any{
		"authority":      u.Authority.String(),
		"key":            governance.UserKey(u.Authority),
		"basePower":      u64(u.BasePower),
		"effectivePower": u64(effectivePower),
		"reputation":     u64(u.Reputation),
		"lastVoteTime":   i64(u.LastVoteTime),
		"registeredAt":   i64(u.RegisteredAt),
	}
	if u.DelegatedTo != nil {
		ret["delegatedTo"] = u.DelegatedTo.String()
	}
	return ret
}

func proposalObject(p *governance.Proposal) map[string]any {
	return map[string]any{
		"id":          u64(p.ID),
		"key":         governance.ProposalKey(p.ID),
		"title":       p.Title,
		"description": p.Description,
		"creator":     p.Creator.String(),
		"yesVotes":    u64(p.YesVotes),
		"noVotes":     u64(p.NoVotes),
		"status":      p.Status.String(),
		"startTime":   i64(p.StartTime),
		"deadline":    i64(p.Deadline),
		"finalizedAt": i64(p.FinalizedAt),
	}
}

func voteRecordObject(v *governance.VoteRecord) map[string]any {
	return map[string]any{
		"voter":      v.Voter.String(),
		"proposalId": u64(v.ProposalID),
		"key":        governance.VoteRecordKey(v.Voter, v.ProposalID),
		"hasVoted":   v.HasVoted,
		"choice":     v.Choice.String(),
		"weight":     u64(v.Weight),
		"votedAt":    i64(v.VotedAt),
	}
}

// nullIfNotFound resolves missing records to null instead of an error
func nullIfNotFound(v any, err error) (any, error) {
	if err != nil {
		if governance.ClassOf(err) == governance.ErrorClassNotFound {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func argProposalId(p graphql.ResolveParams) (uint64, error) {
	idStr, _ := p.Args["id"].(string)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, errors.New("invalid proposal id")
	}
	return id, nil
}

func argIdentity(p graphql.ResolveParams, name string) (governance.Identity, error) {
	s, _ := p.Args[name].(string)
	return governance.ParseIdentity(s)
}

// newGraphQLSchema builds the read-only query schema backed by engine
func newGraphQLSchema(engine GovernanceEngine) (graphql.Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"config": &graphql.Field{
				Type: configType,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					cfg, err := engine.GetConfig(p.Context)
					if err != nil {
						return nullIfNotFound(nil, err)
					}
					return configObject(cfg), nil
				},
			},
			"user": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"authority": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					authority, err := argIdentity(p, "authority")
					if err != nil {
						return nil, err
					}
					user, err := engine.GetUser(p.Context, authority)
					if err != nil {
						return nullIfNotFound(nil, err)
					}
					power, err := engine.EffectivePower(p.Context, authority)
					if err != nil {
						return nil, err
					}
					return userObject(user, power), nil
				},
			},
			"proposal": &graphql.Field{
				Type: proposalType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, err := argProposalId(p)
					if err != nil {
						return nil, err
					}
					proposal, err := engine.GetProposal(p.Context, id)
					if err != nil {
						return nullIfNotFound(nil, err)
					}
					return proposalObject(proposal), nil
				},
			},
			"proposals": &graphql.Field{
				Type: graphql.NewList(proposalType),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.String},
					"offset": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 0,
					},
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: governance.DefaultProposalPageSize,
					},
					"descending": &graphql.ArgumentConfig{
						Type:         graphql.Boolean,
						DefaultValue: false,
					},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					offset, _ := p.Args["offset"].(int)
					limit, _ := p.Args["limit"].(int)
					desc, _ := p.Args["descending"].(bool)
					if offset < 0 || limit < 0 {
						return nil, errors.New("offset and limit must not be negative")
					}
					query := governance.ProposalQuery{
						Offset:     offset,
						Limit:      limit,
						Descending: desc,
					}
					if statusStr, ok := p.Args["status"].(string); ok &&
						statusStr != "" {
						status, err := governance.ParseProposalStatus(statusStr)
						if err != nil {
							return nil, err
						}
						query.Status = &status
					}
					proposals, err := engine.ListProposals(p.Context, query)
					if err != nil {
						return nil, err
					}
					ret := make([]map[string]any, 0, len(proposals))
					for _, proposal := range proposals {
						ret = append(ret, proposalObject(proposal))
					}
					return ret, nil
				},
			},
			"voteRecord": &graphql.Field{
				Type: voteRecordType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
					"voter": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, err := argProposalId(p)
					if err != nil {
						return nil, err
					}
					voter, err := argIdentity(p, "voter")
					if err != nil {
						return nil, err
					}
					record, err := engine.GetVoteRecord(p.Context, voter, id)
					if err != nil {
						return nullIfNotFound(nil, err)
					}
					return voteRecordObject(record), nil
				},
			},
		},
	})
	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

func (s *Server) graphqlHandler() http.Handler {
	schema, err := newGraphQLSchema(s.engine)
	if err != nil {
		s.logger.Error("failed to build GraphQL schema", "error", err)
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(
				w,
				http.StatusServiceUnavailable,
				"GraphQL schema unavailable",
			)
		})
	}
	return handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: false,
	})
}
