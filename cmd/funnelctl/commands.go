package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fatflowers/funnelhook/internal/app"
	"github.com/fatflowers/funnelhook/internal/app/service/account"
	"github.com/fatflowers/funnelhook/internal/app/service/bounce"
	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/app/service/enrollment"
	"github.com/fatflowers/funnelhook/internal/app/service/side_effect"
	wh "github.com/fatflowers/funnelhook/internal/app/service/webhook_handler"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/types"
)

// withCore starts the service graph without the HTTP server, runs fn and
// stops it again. Config comes from APP_CONFIG_FILE like the server.
func withCore(ctx context.Context, targets []any, fn func() error) error {
	a := fx.New(app.Core, fx.NopLogger, fx.Populate(targets...))
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	runErr := fn()

	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func replayCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "replay [event-id]",
		Short: "Re-feed a stored webhook delivery through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var h *wh.Handler
			return withCore(cmd.Context(), []any{&h}, func() error {
				res, err := h.Replay(cmd.Context(), args[0], force)
				if res != nil {
					_ = printJSON(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip deduplication")
	return cmd
}

func bouncesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bounces",
		Short: "Inspect and resolve email deliverability failures",
	}
	cmd.AddCommand(bouncesListCmd(), bouncesResolveCmd())
	return cmd
}

// bounceListRequest builds the scan request for "bounces list".
func bounceListRequest(status string, size int) *types.ScanRequest {
	req := &types.ScanRequest{Size: size}
	if status != "" {
		req.Filters = []*types.CommonFilter{{
			Field:    "status",
			Operator: types.CommonFilterOperatorEq,
			Values:   []any{status},
		}}
	}
	return req
}

func bouncesListCmd() *cobra.Command {
	var (
		status string
		size   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List email bounces, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc *bounce.Service
			return withCore(cmd.Context(), []any{&svc}, func() error {
				res, err := svc.List(cmd.Context(), bounceListRequest(status, size))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, needs_manual, ...)")
	cmd.Flags().IntVarP(&size, "limit", "n", 50, "Maximum results")
	return cmd
}

func bouncesResolveCmd() *cobra.Command {
	var status, email, operator string
	cmd := &cobra.Command{
		Use:   "resolve [bounce-id]",
		Short: "Resolve an open bounce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc *bounce.Service
			return withCore(cmd.Context(), []any{&svc}, func() error {
				res, err := svc.Resolve(cmd.Context(), &bounce.ResolveRequest{
					ID:             args[0],
					Status:         types.BounceStatus(status),
					CorrectedEmail: email,
					Operator:       operator,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Target status: auto_fixed, manual_fixed or ignored")
	cmd.Flags().StringVar(&email, "email", "", "Corrected email address")
	cmd.Flags().StringVar(&operator, "operator", "", "Who resolved it")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the product catalog",
	}
	cmd.AddCommand(catalogResolveCmd())
	return cmd
}

func catalogResolveCmd() *cobra.Command {
	var product, name string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which courses a product id or name maps to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), catalog.NewMapper(cfg).Resolve(product, name))
		},
	}
	cmd.Flags().StringVarP(&product, "product", "p", "", "Product id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Product name")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect learner accounts",
	}
	cmd.AddCommand(userShowCmd())
	return cmd
}

// userView is what "user show" prints.
type userView struct {
	User        *models.User         `json:"user"`
	Enrollments []*models.Enrollment `json:"enrollments"`
	Tags        []string             `json:"tags"`
}

func lookupUser(ctx context.Context, gdb *gorm.DB, o *enrollment.Orchestrator, email string) (*userView, error) {
	u, err := account.FindByEmail(ctx, gdb, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("no user with email %q", email)
	}
	enrollments, err := o.ListByUser(ctx, gdb, u.ID)
	if err != nil {
		return nil, err
	}
	tags, err := side_effect.ListTags(ctx, gdb, u.ID)
	if err != nil {
		return nil, err
	}
	return &userView{User: u, Enrollments: enrollments, Tags: tags}, nil
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [email]",
		Short: "Show a user's enrollments and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				gdb *gorm.DB
				o   *enrollment.Orchestrator
			)
			return withCore(cmd.Context(), []any{&gdb, &o}, func() error {
				v, err := lookupUser(cmd.Context(), gdb, o, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}
