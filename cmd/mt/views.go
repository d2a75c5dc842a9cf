package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/matorral/internal/audit"
	"github.com/satyaki-up/matorral/internal/fixture"
	"github.com/satyaki-up/matorral/internal/issues"
	"github.com/satyaki-up/matorral/internal/ui"
)

var auditBatch string

var treeCmd = &cobra.Command{
	Use:   "tree <PROJECT>",
	Short: "Show a project's milestones, epics, work items and subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := findProject(ctx, args[0])
		if err != nil {
			return err
		}
		nodes, err := svc.Tree(ctx, p.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(nodes)
			return nil
		}
		fmt.Printf("%s %s\n", p.String(), ui.RenderStatus(p.Status))
		ui.RenderTree(os.Stdout, nodes)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [kind:id]",
	Short: "Show the status history of an entity, or of one write batch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var entries []audit.Entry
		switch {
		case auditBatch != "":
			list, err := svc.AuditBatch(ctx, auditBatch)
			if err != nil {
				return err
			}
			entries = list
		case len(args) == 1:
			ref, err := issues.ParseRef(args[0])
			if err != nil {
				return err
			}
			if _, err := svc.GetEntity(ctx, ref); err != nil {
				return err
			}
			list, err := svc.AuditLog(ctx, ref)
			if err != nil {
				return err
			}
			entries = list
		default:
			return fmt.Errorf("%w: pass kind:id or --batch", issues.ErrInvalidInput)
		}
		if jsonOutput {
			outputJSON(entries)
			return nil
		}
		ui.RenderAudit(os.Stdout, entries)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create projects and their hierarchy from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fixture.ParseFile(args[0])
		if err != nil {
			return err
		}
		sum, err := fixture.Import(cmd.Context(), svc, f, cfg.Workspace)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(sum)
			return nil
		}
		fmt.Printf("%s imported into %s: %d projects, %d milestones, %d epics, %d items, %d subtasks\n",
			ui.RenderDone(ui.IconDone), sum.Workspace.Slug, len(sum.Projects), sum.Milestones, sum.Epics, sum.Items, sum.Subtasks)
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditBatch, "batch", "", "Batch id shared by one status write")
	rootCmd.AddCommand(treeCmd, auditCmd, importCmd)
}
