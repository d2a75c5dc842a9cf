package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/matorral/internal/issues"
	"github.com/satyaki-up/matorral/internal/ui"
)

var projectCmd = &cobra.Command{Use: "project", Short: "Manage projects"}
var milestoneCmd = &cobra.Command{Use: "milestone", Short: "Manage milestones"}
var epicCmd = &cobra.Command{Use: "epic", Short: "Manage epics"}
var itemCmd = &cobra.Command{Use: "item", Short: "Manage stories, bugs and chores"}
var subtaskCmd = &cobra.Command{Use: "subtask", Short: "Manage subtasks"}

var (
	createProject   string
	createTitle     string
	createStatus    string
	createPriority  string
	createPoints    int
	createMilestone int64
	createParent    int64
	createType      string
)

var projectCreateCmd = &cobra.Command{
	Use:   "create <KEY> <name>",
	Short: "Create a project in the configured workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, err := svc.EnsureWorkspace(ctx, cfg.Workspace)
		if err != nil {
			return err
		}
		p, err := svc.CreateProject(ctx, ws.ID, args[0], args[1])
		if err != nil {
			return err
		}
		return printCreated(p)
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects of the configured workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, err := currentWorkspace(ctx)
		if err != nil {
			return err
		}
		list, err := svc.ListProjects(ctx, ws.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(list)
			return nil
		}
		for _, p := range list {
			fmt.Printf("%-6d %s %s\n", p.ID, p.String(), ui.RenderStatus(p.Status))
		}
		return nil
	},
}

var milestoneCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a milestone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := findProject(ctx, createProject)
		if err != nil {
			return err
		}
		m, err := svc.CreateMilestone(ctx, issues.NewMilestone{
			ProjectID: p.ID,
			Title:     createTitle,
			Status:    issues.IssueStatus(createStatus),
			Priority:  issues.Priority(createPriority),
		})
		if err != nil {
			return err
		}
		return printCreated(m)
	},
}

var epicCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an epic, optionally linked to a milestone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := findProject(ctx, createProject)
		if err != nil {
			return err
		}
		in := issues.NewIssue{
			ProjectID:       p.ID,
			Type:            issues.KindEpic,
			Title:           createTitle,
			Status:          issues.IssueStatus(createStatus),
			Priority:        issues.Priority(createPriority),
			EstimatedPoints: pointsFlag(cmd),
		}
		if cmd.Flags().Changed("milestone") {
			in.MilestoneID = &createMilestone
		}
		epic, err := svc.CreateIssue(ctx, in)
		if err != nil {
			return err
		}
		return printCreated(epic)
	},
}

var epicLinkCmd = &cobra.Command{
	Use:   "link <epic-id> [milestone-id]",
	Short: "Link an epic to a milestone, or unlink it when no milestone is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		epicID, err := parseID(args[0])
		if err != nil {
			return err
		}
		var milestoneID *int64
		if len(args) == 2 {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			milestoneID = &id
		}
		epic, err := svc.SetMilestone(cmd.Context(), epicID, milestoneID)
		if err != nil {
			return err
		}
		return printCreated(epic)
	},
}

var itemCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a story, bug or chore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := issues.ParseKind(createType)
		if err != nil {
			return err
		}
		if !kind.IsWorkItem() {
			return fmt.Errorf("%w: --type must be story, bug or chore", issues.ErrInvalidInput)
		}
		p, err := findProject(ctx, createProject)
		if err != nil {
			return err
		}
		in := issues.NewIssue{
			ProjectID:       p.ID,
			Type:            kind,
			Title:           createTitle,
			Status:          issues.IssueStatus(createStatus),
			Priority:        issues.Priority(createPriority),
			EstimatedPoints: pointsFlag(cmd),
		}
		if cmd.Flags().Changed("parent") {
			in.ParentID = &createParent
		}
		item, err := svc.CreateIssue(ctx, in)
		if err != nil {
			return err
		}
		return printCreated(item)
	},
}

var itemMoveCmd = &cobra.Command{
	Use:   "move <item-id> [epic-id]",
	Short: "Move a work item under an epic, or to the project root",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var parentID *int64
		if len(args) == 2 {
			pid, err := parseID(args[1])
			if err != nil {
				return err
			}
			parentID = &pid
		}
		item, err := svc.SetParent(cmd.Context(), id, parentID)
		if err != nil {
			return err
		}
		return printCreated(item)
	},
}

var subtaskCreateCmd = &cobra.Command{
	Use:   "create <story|bug|chore>:<id> <title>",
	Short: "Attach a subtask to a work item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := issues.ParseRef(args[0])
		if err != nil {
			return err
		}
		parent, err := issues.NewParentRef(ref.Kind, ref.ID)
		if err != nil {
			return err
		}
		st, err := svc.CreateSubtask(cmd.Context(), parent, args[1], issues.SubtaskStatus(createStatus))
		if err != nil {
			return err
		}
		return printCreated(st)
	},
}

func pointsFlag(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("points") {
		return nil
	}
	v := createPoints
	return &v
}

func printCreated(e issues.Entity) error {
	if jsonOutput {
		outputJSON(e)
		return nil
	}
	fmt.Printf("%s %s %s %s\n", ui.RenderDone(ui.IconDone), ui.RenderMuted(e.Ref().String()), e.String(), ui.RenderStatus(e.CurrentStatus()))
	return nil
}

func init() {
	for _, c := range []*cobra.Command{milestoneCreateCmd, epicCreateCmd, itemCreateCmd} {
		c.Flags().StringVar(&createProject, "project", "", "Project key")
		c.Flags().StringVar(&createTitle, "title", "", "Title")
		c.Flags().StringVar(&createStatus, "status", "", "Initial status (default: draft)")
		c.Flags().StringVar(&createPriority, "priority", "", "Priority: low|medium|high|critical (default: medium)")
		_ = c.MarkFlagRequired("project")
		_ = c.MarkFlagRequired("title")
	}
	for _, c := range []*cobra.Command{epicCreateCmd, itemCreateCmd} {
		c.Flags().IntVar(&createPoints, "points", 0, "Estimated points")
	}
	epicCreateCmd.Flags().Int64Var(&createMilestone, "milestone", 0, "Milestone id to link")
	itemCreateCmd.Flags().StringVar(&createType, "type", string(issues.KindStory), "story|bug|chore")
	itemCreateCmd.Flags().Int64Var(&createParent, "parent", 0, "Epic id")
	subtaskCreateCmd.Flags().StringVar(&createStatus, "status", "", "Initial status (default: todo)")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd)
	milestoneCmd.AddCommand(milestoneCreateCmd)
	epicCmd.AddCommand(epicCreateCmd, epicLinkCmd)
	itemCmd.AddCommand(itemCreateCmd, itemMoveCmd)
	subtaskCmd.AddCommand(subtaskCreateCmd)
	rootCmd.AddCommand(projectCmd, milestoneCmd, epicCmd, itemCmd, subtaskCmd)
}
