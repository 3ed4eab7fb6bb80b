package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/spf13/cobra"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/quality"
)

func optionalFlag(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func parseFields(raw string) (models.Fields, error) {
	fields := models.Fields{}
	if strings.TrimSpace(raw) == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fernerrors.NewInvalidOperationError("parse fields", "fields must be a JSON object: %v", err)
	}
	return fields, nil
}

func parseStrategies(raw map[string]string) (models.FieldStrategies, error) {
	strategies := make(models.FieldStrategies, len(raw))
	for field, strategy := range raw {
		if strings.TrimSpace(field) == "" {
			return nil, fernerrors.NewInvalidOperationError("parse strategies", "field name must not be empty")
		}
		strategies[field] = models.SurvivorshipStrategy(strings.ToUpper(strings.TrimSpace(strategy)))
	}
	return strategies, nil
}

func (c *cli) newDuplicatesCommand() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:     "duplicates <record-id>",
		GroupID: "engine",
		Short:   "Find active records that look like duplicates of a record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				if !cmd.Flags().Changed("threshold") {
					threshold = c.cfg.DuplicateThreshold
				}
				return a.Finder.FindDuplicates(ctx, c.tenantID, args[0], threshold)
			})
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity score 0-100 (default DUPLICATE_THRESHOLD)")
	return cmd
}

func (c *cli) newMergeCommand() *cobra.Command {
	var ruleID, reason string

	cmd := &cobra.Command{
		Use:     "merge <master-id> <duplicate-id>",
		GroupID: "engine",
		Short:   "Merge a duplicate record into a master record",
		Example: `  fern merge -t acme A B
  fern merge -t acme A B --rule 3f0c... --reason "same tax id"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Orchestrator.Merge(ctx, c.tenantID, args[0], args[1], optionalFlag(cmd, "rule", ruleID), optionalFlag(cmd, "reason", reason))
			})
		},
	}

	cmd.Flags().StringVar(&ruleID, "rule", "", "survivorship rule id (default: master wins every field)")
	cmd.Flags().StringVar(&reason, "reason", "", "merge reason recorded in the audit log")
	return cmd
}

func (c *cli) newUnmergeCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:     "unmerge <merge-log-id>",
		GroupID: "engine",
		Short:   "Reverse a merge, restoring both records",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Orchestrator.Unmerge(ctx, c.tenantID, args[0], optionalFlag(cmd, "reason", reason))
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "unmerge reason recorded in the audit log")
	return cmd
}

func (c *cli) newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history <record-id>",
		GroupID: "engine",
		Short:   "List the merges a record took part in, newest first",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Orchestrator.History(ctx, c.tenantID, args[0], limit)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (default MERGE_HISTORY_LIMIT, capped at 500)")
	return cmd
}

func (c *cli) newQualityCommand() *cobra.Command {
	var rawFields string

	cmd := &cobra.Command{
		Use:     "quality [record-id]",
		GroupID: "engine",
		Short:   "Score a stored record, or raw --fields, for completeness, validity and consistency",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return c.run(cmd, false, func(ctx context.Context) (any, error) {
					fields, err := parseFields(rawFields)
					if err != nil {
						return nil, err
					}
					return quality.NewScorer().Score(&models.MasterRecord{Fields: fields}), nil
				})
			}

			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				record, err := a.Store.GetByID(ctx, c.tenantID, args[0])
				if err != nil {
					return nil, err
				}
				return a.Quality.Score(record), nil
			})
		},
	}

	cmd.Flags().StringVar(&rawFields, "fields", "", "JSON object of record fields to score without a database")
	return cmd
}

func (c *cli) newRecordsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		GroupID: "admin",
		Short:   "Create and inspect master records",
	}

	var recordID, recordType, rawFields string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an ACTIVE master record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				fields, err := parseFields(rawFields)
				if err != nil {
					return nil, err
				}
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Store.Records.Create(ctx, &models.MasterRecord{
					ID:        recordID,
					TenantID:  c.tenantID,
					Type:      recordType,
					Fields:    fields,
					CreatedBy: appctx.GetActor(ctx),
				})
			})
		},
	}
	create.Flags().StringVar(&recordID, "id", "", "record id (default: generated)")
	create.Flags().StringVar(&recordType, "type", "vendor", "record type")
	create.Flags().StringVar(&rawFields, "fields", "{}", "JSON object of record fields")

	get := &cobra.Command{
		Use:   "get <record-id>",
		Short: "Show a master record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Store.GetByID(ctx, c.tenantID, args[0])
			})
		},
	}

	cmd.AddCommand(create, get)
	return cmd
}

func (c *cli) newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		GroupID: "admin",
		Short:   "Manage survivorship rules",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List rules, highest precedence first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Store.Rules.List(ctx, c.tenantID)
			})
		},
	}

	var (
		name        string
		priority    int
		strategies  map[string]string
		customLogic string
		inactive    bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a survivorship rule",
		Example: `  fern rules create -t acme --name contact-data \
    --strategy email=NEWER --strategy phone=DUPLICATE \
    --strategy name=CUSTOM --custom-logic "duplicate || master"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, true, func(ctx context.Context) (any, error) {
				fieldStrategies, err := parseStrategies(strategies)
				if err != nil {
					return nil, err
				}
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				return a.Store.Rules.Create(ctx, &models.SurvivorshipRule{
					TenantID:        c.tenantID,
					Name:            name,
					Priority:        priority,
					FieldStrategies: fieldStrategies,
					CustomLogic:     optionalFlag(cmd, "custom-logic", customLogic),
					IsActive:        !inactive,
				})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "rule name, unique per tenant")
	create.Flags().IntVar(&priority, "priority", 0, "precedence; lower wins")
	create.Flags().StringToStringVar(&strategies, "strategy", nil, "field=STRATEGY (MASTER, DUPLICATE, NEWER, OLDER, CUSTOM)")
	create.Flags().StringVar(&customLogic, "custom-logic", "", "JMESPath over {field, master, duplicate}; null falls back to master")
	create.Flags().BoolVar(&inactive, "inactive", false, "create the rule disabled")

	cmd.AddCommand(list, create)
	return cmd
}

func (c *cli) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		GroupID: "admin",
		Short:   "Apply database migrations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, false, func(ctx context.Context) (any, error) {
				if err := c.app.StartDatabase(ctx); err != nil {
					return nil, err
				}
				if !c.cfg.DatabaseAutoMigrate {
					if err := c.app.Migrate(); err != nil {
						return nil, err
					}
				}
				return map[string]any{"migrated": true, "folder": c.cfg.DatabaseMigrationFolderPath}, nil
			})
		},
	}
}

func (c *cli) newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		GroupID: "admin",
		Short:   "Check database, redis and kafka reachability",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, false, func(ctx context.Context) (any, error) {
				a, err := c.engine(ctx)
				if err != nil {
					return nil, err
				}
				report := a.Health(ctx)
				if report.Status == health.StatusUnhealthy {
					return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "fern is unhealthy").
						AddMetaValue("checks", report.Checks)
				}
				return report, nil
			})
		},
	}
}
