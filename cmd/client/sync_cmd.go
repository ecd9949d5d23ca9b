package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/studiosync/internal/client"
	"github.com/openmined/studiosync/internal/client/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync pass and exit",
		Long: `Runs one full pass over every tracked item and prints what changed.
Fails when a studiosync daemon already holds the state dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			c, err := client.New(cfg)
			if err != nil {
				return err
			}

			summary, err := c.SyncOnce(cmd.Context())
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), summary)
			if len(summary.Errors) > 0 {
				return fmt.Errorf("%d item(s) failed to sync", len(summary.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringP("state-dir", "d", "", "directory for logs and the daemon lock")
	return cmd
}

func printSummary(w io.Writer, s *sync.Summary) {
	took := time.Duration(s.Duration).Round(time.Millisecond)
	fmt.Fprintf(w, "%s %s\n", cyan.Render("sync pass finished"), gray.Render("in "+took.String()))

	if !s.HasChanges() {
		fmt.Fprintln(w, lightGray.Render("everything up to date"))
		return
	}

	printPaths(w, "pulled", green.Render("↓"), s.LocallyUpdated)
	printPaths(w, "removed locally", green.Render("-"), s.LocallyDeleted)
	printPaths(w, "pushed", green.Render("↑"), s.PushedToRemote)
	printPaths(w, "removed from studio", green.Render("x"), s.DeletedFromRemote)
	printPaths(w, "untracked", gray.Render("?"), s.Untracked)

	if n := len(s.Conflicts); n > 0 {
		fmt.Fprintf(w, "%s\n", red.Render(fmt.Sprintf("%s %s", humanize.Comma(int64(n)), plural(n, "conflict"))))
		for _, c := range s.Conflicts {
			fmt.Fprintf(w, "  %s %s %s\n", red.Render("!"), c.Path, gray.Render("("+c.Kind+")"))
		}
	}

	if n := len(s.Errors); n > 0 {
		fmt.Fprintf(w, "%s\n", red.Render(fmt.Sprintf("%s %s", humanize.Comma(int64(n)), plural(n, "error"))))
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s %s: %s\n", red.Render("x"), e.Path, e.Error)
		}
	}
}

func printPaths(w io.Writer, label, marker string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(w, "%s %s\n", humanize.Comma(int64(len(paths))), label)
	for _, p := range paths {
		fmt.Fprintf(w, "  %s %s\n", marker, p)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
