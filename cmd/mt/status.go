package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/issues"
	"github.com/satyaki-up/matorral/internal/ui"
)

var (
	statusYes       bool
	statusNoCascade bool
	dialogShown     bool
	applyDown       []string
	applyUp         string
)

type statusOutput struct {
	Entities []issues.Entity      `json:"entities"`
	Cascade  *cascade.Info        `json:"cascade,omitempty"`
	Dialog   cascade.Dialog       `json:"dialog"`
	Applied  *cascade.ApplyResult `json:"applied,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status <kind:id>... <status>",
	Short: "Set the status of one or more entities and offer the resulting cascade",
	Long: `Set the status of one or more entities of the same family, then show which
descendants would follow and whether the parent can advance. With --yes the
cascade is applied without asking; on a terminal you are prompted.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ents, status, err := storeStatuses(ctx, args[:len(args)-1], args[len(args)-1])
		if err != nil {
			return err
		}
		out := statusOutput{Entities: ents}
		if statusNoCascade {
			return printStatus(out)
		}

		info, err := checkAll(ctx, ents, status)
		if err != nil {
			return err
		}
		if info.HasCascade() {
			out.Cascade = info
			out.Dialog = cascade.BuildDialog(info)
			if confirmCascade(out.Dialog) {
				res, err := engine.Apply(ctx, cascade.RequestFromInfo(info, actor))
				out.Applied = &res
				if err != nil {
					_ = printStatus(out)
					return err
				}
			}
		}
		return printStatus(out)
	},
}

// storeStatuses resolves every ref and parses raw for their shared status
// family before any of them is written.
func storeStatuses(ctx context.Context, args []string, raw string) ([]issues.Entity, issues.Status, error) {
	refs := make([]issues.Ref, 0, len(args))
	var family issues.Family
	for _, a := range args {
		ref, err := issues.ParseRef(a)
		if err != nil {
			return nil, nil, err
		}
		if _, err := svc.GetEntity(ctx, ref); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", ref, err)
		}
		f := ref.Kind.Model().Family()
		if len(refs) == 0 {
			family = f
		} else if f != family {
			return nil, nil, fmt.Errorf("%w: %s and %s do not share a status set", issues.ErrInvalidInput, refs[0], ref)
		}
		refs = append(refs, ref)
	}
	status, err := issues.ParseStatus(family, raw)
	if err != nil {
		return nil, nil, err
	}

	ents := make([]issues.Entity, 0, len(refs))
	for _, ref := range refs {
		ent, err := svc.SetStatus(ctx, ref, status.String(), actor)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", ref, err)
		}
		ents = append(ents, ent)
	}
	return ents, status, nil
}

func checkAll(ctx context.Context, ents []issues.Entity, status issues.Status) (*cascade.Info, error) {
	if len(ents) == 1 {
		return engine.Check(ctx, ents[0], status)
	}
	return engine.CheckBulk(ctx, ents, status)
}

// confirmCascade reports whether the offered cascade should be applied.
// Without --yes it prompts on an interactive terminal and declines otherwise.
func confirmCascade(d cascade.Dialog) bool {
	if statusYes {
		return true
	}
	if jsonOutput || !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}
	ui.RenderDialog(os.Stdout, d)
	dialogShown = true
	fmt.Print("Apply cascade? [y/N] ")
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func printStatus(out statusOutput) error {
	if jsonOutput {
		outputJSON(out)
		return nil
	}
	for _, e := range out.Entities {
		fmt.Printf("%s %s %s → %s\n", ui.RenderDone(ui.IconDone), ui.RenderMuted(e.Ref().String()), e.String(), ui.RenderStatus(e.CurrentStatus()))
	}
	switch {
	case out.Applied != nil:
		fmt.Printf("%s cascade applied: %d updated, %d skipped\n", ui.RenderDone(ui.IconDone), out.Applied.Updated, out.Applied.Skipped)
	case out.Cascade != nil:
		if !dialogShown {
			ui.RenderDialog(os.Stdout, out.Dialog)
		}
		fmt.Println(ui.RenderMuted("not applied; rerun with --yes or use: mt cascade apply " + applyArgs(cascade.RequestFromInfo(out.Cascade, ""))))
	}
	return nil
}

var cascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Preview or apply status cascades",
}

var cascadePreviewCmd = &cobra.Command{
	Use:   "preview <kind:id> <status>",
	Short: "Show what a status change would cascade to, without writing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ref, err := issues.ParseRef(args[0])
		if err != nil {
			return err
		}
		ent, err := svc.GetEntity(ctx, ref)
		if err != nil {
			return err
		}
		status, err := issues.ParseStatus(ref.Kind.Model().Family(), args[1])
		if err != nil {
			return err
		}
		info, err := engine.Check(ctx, ent, status)
		if err != nil {
			return err
		}
		d := cascade.BuildDialog(info)
		if jsonOutput {
			outputJSON(struct {
				Cascade *cascade.Info  `json:"cascade"`
				Dialog  cascade.Dialog `json:"dialog"`
			}{info, d})
			return nil
		}
		if !info.HasCascade() {
			fmt.Println(ui.RenderMuted("nothing to cascade"))
			return nil
		}
		ui.RenderDialog(os.Stdout, d)
		return nil
	},
}

var cascadeApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply confirmed cascade groups",
	Long: `Apply confirmed cascade groups. Each --down names a table, its ids and the
target status; --up names the parent to advance:

  mt cascade apply --down issue:4,5=done --down subtask:9=done --up project:1=completed`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := parseApplyFlags(applyDown, applyUp)
		if err != nil {
			return err
		}
		req.Actor = actor
		res, err := engine.Apply(cmd.Context(), req)
		if jsonOutput {
			outputJSON(res)
		} else {
			fmt.Printf("%s %d updated in %d groups, %d skipped\n", ui.RenderDone(ui.IconDone), res.Updated, res.Groups, res.Skipped)
		}
		return err
	},
}

// parseApplyFlags reads "model:id,id=status" group specs.
func parseApplyFlags(down []string, up string) (cascade.ApplyRequest, error) {
	var req cascade.ApplyRequest
	for _, spec := range down {
		model, ids, status, err := splitGroupSpec(spec)
		if err != nil {
			return req, err
		}
		req.Down = append(req.Down, cascade.GroupChange{Model: model, IDs: cascade.ParseIDs(ids), Status: status})
	}
	if up != "" {
		model, rawID, status, err := splitGroupSpec(up)
		if err != nil {
			return req, err
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			return req, fmt.Errorf("%w: --up takes a single id, got %q", issues.ErrInvalidInput, rawID)
		}
		req.Up = &cascade.ParentChange{Model: model, ID: id, Status: status}
	}
	return req, nil
}

func splitGroupSpec(spec string) (issues.Model, string, string, error) {
	target, status, ok := strings.Cut(spec, "=")
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q must look like model:ids=status", issues.ErrInvalidInput, spec)
	}
	model, ids, ok := strings.Cut(target, ":")
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q must look like model:ids=status", issues.ErrInvalidInput, spec)
	}
	return issues.Model(strings.TrimSpace(model)), strings.TrimSpace(ids), strings.TrimSpace(status), nil
}

// applyArgs renders req as cascade apply flags.
func applyArgs(req cascade.ApplyRequest) string {
	var parts []string
	for _, g := range req.Down {
		ids := make([]string, len(g.IDs))
		for i, id := range g.IDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		parts = append(parts, fmt.Sprintf("--down %s:%s=%s", g.Model, strings.Join(ids, ","), g.Status))
	}
	if req.Up != nil {
		parts = append(parts, fmt.Sprintf("--up %s:%d=%s", req.Up.Model, req.Up.ID, req.Up.Status))
	}
	return strings.Join(parts, " ")
}

func init() {
	statusCmd.Flags().BoolVarP(&statusYes, "yes", "y", false, "Apply the offered cascade without asking")
	statusCmd.Flags().BoolVar(&statusNoCascade, "no-cascade", false, "Only store the status")
	cascadeApplyCmd.Flags().StringArrayVar(&applyDown, "down", nil, "Down group as model:ids=status (repeatable)")
	cascadeApplyCmd.Flags().StringVar(&applyUp, "up", "", "Parent change as model:id=status")

	cascadeCmd.AddCommand(cascadePreviewCmd, cascadeApplyCmd)
	rootCmd.AddCommand(statusCmd, cascadeCmd)
}
