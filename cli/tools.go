package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func ToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the registered tool catalog",
	}
	cmd.AddCommand(toolsListCmd(), toolsShowCmd())
	return cmd
}

func toolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			catalog, err := buildCatalog(a.cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLABEL\tCATEGORY\tREAD-ONLY")
			for _, def := range catalog.Definitions() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", def.Name, def.Label, def.Category, def.ReadOnly)
			}
			return w.Flush()
		},
	}
}

func toolsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one tool's description and argument contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			catalog, err := buildCatalog(a.cfg)
			if err != nil {
				return err
			}
			def, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", def.Name, def.Label)
			fmt.Fprintf(out, "category: %s\n", def.Category)
			fmt.Fprintf(out, "read-only: %t\n", def.ReadOnly)
			if len(def.UserArgs) > 0 {
				fmt.Fprintf(out, "user-supplied args: %s\n", strings.Join(def.UserArgs, ", "))
			}
			fmt.Fprintf(out, "\n%s\n\narguments:\n%s", def.Description, def.Args.Describe())
			return nil
		},
	}
}
