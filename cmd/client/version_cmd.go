package main

import (
	"fmt"

	"github.com/openmined/studiosync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print studiosync version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.DetailedWithApp()
			if short {
				v = version.Short()
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version and revision")
	return cmd
}
