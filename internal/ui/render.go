package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/satyaki-up/matorral/internal/audit"
	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/issues"
)

const progressBarWidth = 10

// RenderTree writes nodes as an indented tree with status and progress.
func RenderTree(w io.Writer, nodes []issues.TreeNode) {
	for i, node := range nodes {
		renderNode(w, node, "", i == len(nodes)-1)
	}
}

func renderNode(w io.Writer, node issues.TreeNode, prefix string, last bool) {
	branch, childPrefix := TreeBranch, prefix+TreePipe
	if last {
		branch, childPrefix = TreeLast, prefix+TreeIndent
	}
	line := fmt.Sprintf("%s%s%s %s", MutedStyle.Render(prefix+branch), kindLabel(node.Entity.Ref()), node.Entity.String(), RenderStatus(node.Entity.CurrentStatus()))
	if node.Progress != nil {
		line += " " + RenderProgress(node.Progress)
	}
	fmt.Fprintln(w, line)
	for i, child := range node.Children {
		renderNode(w, child, childPrefix, i == len(node.Children)-1)
	}
}

// RenderProgress renders a compact bar followed by the done percentage.
func RenderProgress(p *issues.Progress) string {
	done := p.DonePct * progressBarWidth / 100
	inProgress := p.InProgressPct * progressBarWidth / 100
	if done+inProgress > progressBarWidth {
		inProgress = progressBarWidth - done
	}
	todo := progressBarWidth - done - inProgress
	bar := DoneStyle.Render(strings.Repeat("█", done)) +
		InProgressStyle.Render(strings.Repeat("▒", inProgress)) +
		TodoStyle.Render(strings.Repeat("░", todo))
	return fmt.Sprintf("%s %d%%", bar, p.DonePct)
}

// RenderDialog writes the confirmation text for a cascade preview.
func RenderDialog(w io.Writer, d cascade.Dialog) {
	if d.Down != nil {
		fmt.Fprintf(w, "%s %s\n", RenderAccent(IconDown), RenderHeader(fmt.Sprintf("%d descendants will move to %s", d.Down.TotalCount, d.Down.TargetStatusLabel)))
		for _, it := range d.Down.Items {
			fmt.Fprintf(w, "  %s%s %s\n", kindLabel(it.Ref), it.Label, RenderMuted("("+it.StatusLabel+")"))
		}
		if d.Down.Remaining > 0 {
			fmt.Fprintf(w, "  %s\n", RenderMuted(fmt.Sprintf("... and %d more", d.Down.Remaining)))
		}
	}
	if d.Up != nil {
		fmt.Fprintf(w, "%s %s\n", RenderAccent(IconUp), RenderHeader("parent can advance"))
		fmt.Fprintf(w, "  %s%s %s %s\n", kindLabel(d.Up.Parent), d.Up.ParentLabel, RenderMuted("→"), d.Up.SuggestedStatusLabel)
	}
}

func kindLabel(ref issues.Ref) string {
	return RenderMuted(string(ref.Kind) + " ")
}

// RenderAudit writes one line per audit entry, oldest first.
func RenderAudit(w io.Writer, entries []audit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, RenderMuted("no changes recorded"))
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s: %s → %s  %s\n",
			RenderMuted(e.CreatedAt.Format("2006-01-02 15:04:05")),
			e.Field,
			e.OldValue,
			RenderDone(e.NewValue),
			RenderMuted("by "+e.Actor),
		)
	}
}
