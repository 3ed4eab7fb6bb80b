package main

import (
	"context"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type cli struct {
	out        io.Writer
	configFile string
	tenantID   string
	userID     string

	cfg        *config.Config
	logger     ectologger.Logger
	syncLogger func() error
	app        *app.App
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "fern",
		Short: "Master data deduplication and merge engine",
		Long: `fern finds duplicate master records, merges them under survivorship rules,
reverses merges from their audit trail and scores record quality.

Every command prints a JSON envelope {success, data, metadata}.`,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "optional config file; environment variables take precedence")
	root.PersistentFlags().StringVarP(&c.tenantID, "tenant", "t", "", "tenant id")
	root.PersistentFlags().StringVarP(&c.userID, "user", "u", "", "acting user id (defaults to system)")

	root.AddGroup(
		&cobra.Group{ID: "engine", Title: "Dedup and Merge Commands:"},
		&cobra.Group{ID: "admin", Title: "Administration Commands:"},
	)

	root.AddCommand(
		c.newDuplicatesCommand(),
		c.newMergeCommand(),
		c.newUnmergeCommand(),
		c.newHistoryCommand(),
		c.newQualityCommand(),
		c.newRecordsCommand(),
		c.newRulesCommand(),
		c.newMigrateCommand(),
		c.newHealthCommand(),
	)

	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(c.configFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, syncLogger, err := app.NewLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return err
	}
	c.logger = logger
	c.syncLogger = syncLogger
	c.app = app.New(cfg, logger)
	return nil
}

func (c *cli) teardown(cmd *cobra.Command, _ []string) error {
	if c.app != nil {
		if err := c.app.Stop(context.WithoutCancel(cmd.Context())); err != nil {
			c.logger.WithError(err).Warn("Failed to stop cleanly")
		}
	}
	if c.syncLogger != nil {
		_ = c.syncLogger()
	}
	return nil
}

// run executes fn with a request-scoped context and prints its result or error as an envelope.
func (c *cli) run(cmd *cobra.Command, needsTenant bool, fn func(ctx context.Context) (any, error)) error {
	ctx := appctx.SetRequestID(cmd.Context(), uuid.New().String())
	ctx = appctx.SetTenantID(ctx, c.tenantID)
	if c.userID != "" {
		ctx = appctx.SetUserID(ctx, c.userID)
	}

	ctx, span := tracing.StartSpan(ctx, "fern."+cmd.Name())
	defer span.End()

	meta := metadata{
		RequestID: appctx.GetRequestID(ctx),
		TenantID:  c.tenantID,
		TraceID:   tracing.GetTraceID(ctx),
		Timestamp: time.Now().UTC(),
	}

	var data any
	var err error
	if needsTenant && c.tenantID == "" {
		err = fernerrors.NewInvalidOperationError(cmd.Name(), "--tenant is required")
	} else {
		data, err = fn(ctx)
	}

	if err != nil {
		tracing.RecordError(span, err)
		if c.logger != nil {
			c.logger.WithContext(ctx).WithError(err).Debugf("%s failed", cmd.Name())
		}
		_ = writeError(c.out, meta, err)
		return err
	}
	return writeData(c.out, meta, data)
}

// engine starts the full application unless it is already running
func (c *cli) engine(ctx context.Context) (*app.App, error) {
	if c.app.Orchestrator != nil {
		return c.app, nil
	}
	if err := c.app.Start(ctx); err != nil {
		return nil, err
	}
	return c.app, nil
}
