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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/blinklabs-io/tally/governance"
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/internal/node"
	"github.com/blinklabs-io/tally/keystore"
	"github.com/spf13/cobra"
)

type govFunc func(
	ctx context.Context,
	engine *governance.Engine,
	signer *keystore.Signer,
) (any, error)

type keyedProposal struct {
	Key      string               `json:"key"`
	Proposal *governance.Proposal `json:"proposal"`
}

type keyedUser struct {
	Key            string           `json:"key"`
	User           *governance.User `json:"user"`
	EffectivePower uint64           `json:"effectivePower"`
}

type keyedVoteRecord struct {
	Key        string                 `json:"key"`
	VoteRecord *governance.VoteRecord `json:"voteRecord"`
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// runGov opens the local database, runs fn against the engine and prints
// its result as JSON
func runGov(cmd *cobra.Command, needSigner bool, fn govFunc) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	var signer *keystore.Signer
	if needSigner {
		path, err := keyPath(cmd, "key")
		if err != nil {
			return err
		}
		signer, err = keystore.LoadSigner(path)
		if err != nil {
			return fmt.Errorf("loading signing key: %w", err)
		}
	}
	// Keep stdout for the JSON result
	logger := newLogger(os.Stderr)
	n, err := node.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()
	result, err := fn(cmd.Context(), n.Engine(), signer)
	if err != nil {
		return fmt.Errorf("%s error: %w", governance.ClassOf(err), err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func parseProposalId(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal ID %q", s)
	}
	return id, nil
}

// durationSeconds converts a flag duration to whole seconds
func durationSeconds(d time.Duration) (uint64, error) {
	if d < 0 || d%time.Second != 0 {
		return 0, fmt.Errorf(
			"%w: %s is not a whole number of seconds",
			governance.ErrInvalidDuration,
			d,
		)
	}
	return uint64(d / time.Second), nil
}

func proposalResult(p *governance.Proposal) keyedProposal {
	return keyedProposal{Key: governance.ProposalKey(p.ID), Proposal: p}
}

func userResult(
	ctx context.Context,
	engine *governance.Engine,
	authority governance.Identity,
) (any, error) {
	user, err := engine.GetUser(ctx, authority)
	if err != nil {
		return nil, err
	}
	power, err := engine.EffectivePower(ctx, authority)
	if err != nil {
		return nil, err
	}
	return keyedUser{
		Key:            governance.UserKey(authority),
		User:           user,
		EffectivePower: power,
	}, nil
}

func govCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gov",
		Short: "Run governance operations against the local database",
	}
	cmd.PersistentFlags().
		String("key", "", "path to the signing key (default from config)")
	cmd.AddCommand(
		govInitCommand(),
		govRegisterCommand(),
		govProposeCommand(),
		govDelegateCommand(),
		govUndelegateCommand(),
		govVoteCommand(),
		govFinalizeCommand(),
		govShowCommand(),
	)
	return cmd
}

func govInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize governance with the signer as admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				if err := engine.Initialize(ctx, signer.Identity()); err != nil {
					return nil, err
				}
				return engine.GetConfig(ctx)
			})
		},
	}
}

func govRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register IDENTITY BASE_POWER",
		Short: "Register a voter (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := governance.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			basePower, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid base power %q", args[1])
			}
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				if _, err := engine.RegisterUser(
					ctx,
					signer.Identity(),
					target,
					basePower,
				); err != nil {
					return nil, err
				}
				return userResult(ctx, engine, target)
			})
		},
	}
}

func govProposeCommand() *cobra.Command {
	var title, description string
	var duration, startDelay time.Duration
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Create a proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			durationSecs, err := durationSeconds(duration)
			if err != nil {
				return err
			}
			startDelaySecs, err := durationSeconds(startDelay)
			if err != nil {
				return err
			}
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				p, err := engine.CreateProposal(
					ctx,
					governance.CreateProposalRequest{
						Title:             title,
						Description:       description,
						Proposer:          signer.Identity(),
						DurationSeconds:   durationSecs,
						StartDelaySeconds: startDelaySecs,
					},
				)
				if err != nil {
					return nil, err
				}
				return proposalResult(p), nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "proposal title")
	cmd.Flags().StringVar(&description, "description", "", "proposal description")
	cmd.Flags().DurationVar(&duration, "duration", 72*time.Hour, "voting period, measured from creation")
	cmd.Flags().DurationVar(&startDelay, "start-delay", 0, "delay before voting opens")
	return cmd
}

func govDelegateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delegate IDENTITY",
		Short: "Delegate the signer's voting power",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delegatee, err := governance.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				if err := engine.Delegate(ctx, signer.Identity(), delegatee); err != nil {
					return nil, err
				}
				return userResult(ctx, engine, signer.Identity())
			})
		},
	}
}

func govUndelegateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "undelegate",
		Short: "Revoke the signer's delegation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				if err := engine.Undelegate(ctx, signer.Identity()); err != nil {
					return nil, err
				}
				return userResult(ctx, engine, signer.Identity())
			})
		},
	}
}

func govVoteCommand() *cobra.Command {
	var power uint64
	cmd := &cobra.Command{
		Use:   "vote PROPOSAL_ID yes|no",
		Short: "Vote on a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalId, err := parseProposalId(args[0])
			if err != nil {
				return err
			}
			choice, err := governance.ParseVoteChoice(args[1])
			if err != nil {
				return err
			}
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				rec, err := engine.Vote(ctx, governance.VoteRequest{
					Voter:      signer.Identity(),
					ProposalID: proposalId,
					Choice:     choice,
					Power:      power,
				})
				if err != nil {
					return nil, err
				}
				return keyedVoteRecord{
					Key:        governance.VoteRecordKey(rec.Voter, rec.ProposalID),
					VoteRecord: rec,
				}, nil
			})
		},
	}
	cmd.Flags().Uint64Var(&power, "power", 0, "power to commit (quadratic policy)")
	return cmd
}

func govFinalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize PROPOSAL_ID",
		Short: "Finalize a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalId, err := parseProposalId(args[0])
			if err != nil {
				return err
			}
			return runGov(cmd, true, func(
				ctx context.Context,
				engine *governance.Engine,
				signer *keystore.Signer,
			) (any, error) {
				p, err := engine.FinalizeProposal(ctx, signer.Identity(), proposalId)
				if err != nil {
					return nil, err
				}
				return proposalResult(p), nil
			})
		},
	}
}

func govShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show governance state",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "Show the governance configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runGov(cmd, false, func(
					ctx context.Context,
					engine *governance.Engine,
					_ *keystore.Signer,
				) (any, error) {
					return engine.GetConfig(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "user IDENTITY",
			Short: "Show a registered user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				authority, err := governance.ParseIdentity(args[0])
				if err != nil {
					return err
				}
				return runGov(cmd, false, func(
					ctx context.Context,
					engine *governance.Engine,
					_ *keystore.Signer,
				) (any, error) {
					return userResult(ctx, engine, authority)
				})
			},
		},
		&cobra.Command{
			Use:   "proposal PROPOSAL_ID",
			Short: "Show a proposal",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				proposalId, err := parseProposalId(args[0])
				if err != nil {
					return err
				}
				return runGov(cmd, false, func(
					ctx context.Context,
					engine *governance.Engine,
					_ *keystore.Signer,
				) (any, error) {
					p, err := engine.GetProposal(ctx, proposalId)
					if err != nil {
						return nil, err
					}
					return proposalResult(p), nil
				})
			},
		},
		govShowProposalsCommand(),
		&cobra.Command{
			Use:   "vote PROPOSAL_ID VOTER",
			Short: "Show a vote record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				proposalId, err := parseProposalId(args[0])
				if err != nil {
					return err
				}
				voter, err := governance.ParseIdentity(args[1])
				if err != nil {
					return err
				}
				return runGov(cmd, false, func(
					ctx context.Context,
					engine *governance.Engine,
					_ *keystore.Signer,
				) (any, error) {
					rec, err := engine.GetVoteRecord(ctx, voter, proposalId)
					if err != nil {
						return nil, err
					}
					return keyedVoteRecord{
						Key:        governance.VoteRecordKey(voter, proposalId),
						VoteRecord: rec,
					}, nil
				})
			},
		},
	)
	return cmd
}

func govShowProposalsCommand() *cobra.Command {
	var status string
	var offset, limit int
	var descending bool
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := governance.ProposalQuery{
				Offset:     offset,
				Limit:      limit,
				Descending: descending,
			}
			if status != "" {
				s, err := governance.ParseProposalStatus(status)
				if err != nil {
					return err
				}
				query.Status = &s
			}
			return runGov(cmd, false, func(
				ctx context.Context,
				engine *governance.Engine,
				_ *keystore.Signer,
			) (any, error) {
				proposals, err := engine.ListProposals(ctx, query)
				if err != nil {
					return nil, err
				}
				ret := make([]keyedProposal, 0, len(proposals))
				for _, p := range proposals {
					ret = append(ret, proposalResult(p))
				}
				return ret, nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, passed, rejected)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of proposals to skip")
	cmd.Flags().IntVar(&limit, "limit", governance.DefaultProposalPageSize, "maximum number of proposals")
	cmd.Flags().BoolVar(&descending, "desc", false, "newest first")
	return cmd
}
