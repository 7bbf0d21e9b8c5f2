package cli

import (
	"fmt"

	"github.com/mesh-intelligence/playground/pkg/playground"
	"github.com/spf13/cobra"
)

const modulePath = "github.com/mesh-intelligence/playground"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the playground version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "playground v%s\nmodule: %s\n", playground.Version, modulePath)
			return nil
		},
	}
}
