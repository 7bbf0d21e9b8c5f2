package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/pkg/types"
	"github.com/spf13/cobra"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Add new iteration files to the canvas",
		Long:  "Scan lists the iterations directory once and places every iteration the\ncanvas has not seen under its resolved parent.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer w.close()

			res, err := w.session.Scan(cmd.Context())
			if err != nil {
				return sysError(err)
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, res)
			}
			for i, id := range res.Added {
				fmt.Fprintf(out, "added %s as %s\n", id, res.NodeIDs[i])
			}
			for _, id := range res.Skipped {
				fmt.Fprintf(out, "skipped %s (no parent on canvas)\n", id)
			}
			for _, c := range res.Collisions {
				fmt.Fprintf(out, "ambiguous %s: matched %s among %s\n", c.IterationID, c.Chosen, strings.Join(c.Candidates, ", "))
			}
			fmt.Fprintf(out, "%d added, %d skipped\n", len(res.Added), len(res.Skipped))
			return nil
		},
	}
}

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the iteration ancestry recorded in the tree manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer w.close()

			m := w.session.Manifest()
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), m.Entries())
			}
			printTree(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

// printTree writes the manifest as an indented forest. Tops are parents that
// are not themselves entries; usually component ids.
func printTree(out io.Writer, m *manifest.Manifest) {
	entries := m.Entries()
	isEntry := make(map[string]bool, len(entries))
	for _, e := range entries {
		isEntry[e.ID] = true
	}
	topSet := make(map[string]bool)
	for _, e := range entries {
		if !isEntry[e.Parent] {
			topSet[e.Parent] = true
		}
	}
	tops := make([]string, 0, len(topSet))
	for t := range topSet {
		tops = append(tops, t)
	}
	sort.Strings(tops)

	printed := make(map[string]bool)
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth), id)
		printed[id] = true
		for _, kid := range m.Children(id) {
			if !printed[kid] {
				walk(kid, depth+1)
			}
		}
	}
	for _, t := range tops {
		walk(t, 0)
	}
	for _, e := range entries {
		if !printed[e.ID] {
			fmt.Fprintf(out, "%s (cycle)\n", e.ID)
			printed[e.ID] = true
		}
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "delete <iteration-id>",
		Short: "Delete an iteration",
		Long: `Delete removes an iteration from the canvas, the tree manifest, and the
iterations directory. With --mode cascade (the default) every descendant goes
too; with --mode reparent the children move up to the deleted iteration's
parent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := types.ParseDeleteMode(mode)
			if err != nil {
				return err
			}
			w, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer w.close()

			res, err := w.session.Delete(cmd.Context(), args[0], dm)
			if err != nil && len(res.DeletedIDs) == 0 {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				if perr := printJSON(out, res); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintf(out, "deleted %s\n", strings.Join(res.DeletedIDs, ", "))
			}
			if err != nil {
				return sysError(fmt.Errorf("delete %s: %w", args[0], err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(types.DeleteCascade), "cascade or reparent")
	return cmd
}

func newLayoutCmd(a *app) *cobra.Command {
	var roots []string
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Arrange the canvas and print node positions",
		Long:  "Layout places any --root components, arranges the canvas, saves it, and\nprints each visible node with its position.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer w.close()

			for _, r := range roots {
				if _, err := w.session.PlaceRoot(r, nil); err != nil {
					return fmt.Errorf("place root %s: %w", r, err)
				}
			}
			w.session.Arrange()
			view := w.session.View()

			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, view.Nodes)
			}
			for _, n := range view.Nodes {
				if n.Hidden {
					continue
				}
				fmt.Fprintf(out, "%-10s %-11s %-30s %8.0f %8.0f\n", n.ID, n.Kind, label(n.Node), n.Position.X, n.Position.Y)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roots, "root", nil, "place a root for this component before arranging (repeatable)")
	return cmd
}

func label(n types.Node) string {
	if n.Iteration != nil {
		return n.Iteration.IterationID
	}
	return n.ComponentName()
}
