package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/matorral/internal/config"
	"github.com/satyaki-up/matorral/internal/ui"
)

var initWorkspace string

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write mtconfig.yaml in the current directory",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noDBAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path, err := config.Init(cwd, initWorkspace)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]string{"config": path, "workspace": initWorkspace})
			return nil
		}
		fmt.Printf("%s wrote %s\n", ui.RenderDone(ui.IconDone), path)
		return nil
	},
}

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceName string

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <slug>",
	Short: "Create a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := svc.CreateWorkspace(cmd.Context(), args[0], workspaceName)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(ws)
			return nil
		}
		fmt.Printf("%s created workspace %s\n", ui.RenderDone(ui.IconDone), ws.Slug)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initWorkspace, "workspace", "default", "Workspace slug to record in the config")
	workspaceCreateCmd.Flags().StringVar(&workspaceName, "name", "", "Display name (default: slug)")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	rootCmd.AddCommand(initCmd, workspaceCmd)
}
