package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/openmined/studiosync/internal/client"
	"github.com/openmined/studiosync/internal/version"
	"github.com/spf13/cobra"
)

// daemonStatus is the subset of GET /v1/status the CLI prints.
type daemonStatus struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Scheduler struct {
		State           string     `json:"state"`
		Enabled         bool       `json:"enabled"`
		PollingInterval string     `json:"pollingInterval"`
		NextRun         *time.Time `json:"nextRun"`
		Pending         int        `json:"pending"`
	} `json:"scheduler"`
	Files []struct {
		Path          string `json:"path"`
		State         string `json:"state"`
		ConflictState string `json:"conflictState"`
		Error         string `json:"error"`
	} `json:"files"`
	Summary struct {
		Pending    int `json:"pending"`
		Syncing    int `json:"syncing"`
		Completed  int `json:"completed"`
		Error      int `json:"error"`
		Conflicted int `json:"conflicted"`
	} `json:"summary"`
}

type daemonError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync status reported by the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			baseURL, err := client.AddrToURL(cfg.ControlPlane.Addr)
			if err != nil {
				return err
			}

			status, err := fetchStatus(cmd.Context(), baseURL, cfg.ControlPlane.Token)
			if err != nil {
				return err
			}

			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().StringP("http-addr", "a", "", "address of the local control plane")
	cmd.Flags().StringP("http-token", "t", "", "bearer token for the local control plane")
	return cmd
}

func fetchStatus(ctx context.Context, baseURL, token string) (*daemonStatus, error) {
	var status daemonStatus
	var apiErr daemonError

	r := req.C().
		SetBaseURL(baseURL).
		SetTimeout(5*time.Second).
		SetUserAgent(version.UserAgent("cli")).
		R().
		SetContext(ctx).
		SetSuccessResult(&status).
		SetErrorResult(&apiErr)
	if token != "" {
		r.SetBearerAuthToken(token)
	}

	resp, err := r.Get("/v1/status")
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", baseURL, err)
	}
	if resp.IsErrorState() {
		if apiErr.Code != "" {
			return nil, fmt.Errorf("daemon status: %s (%s)", apiErr.Error, apiErr.Code)
		}
		return nil, fmt.Errorf("daemon status: %s", resp.Status)
	}
	return &status, nil
}

func printStatus(w io.Writer, s *daemonStatus) {
	fmt.Fprintf(w, "%s %s\n", cyan.Render("studiosync daemon"), gray.Render(s.Version))

	sched := s.Scheduler
	if sched.Enabled {
		fmt.Fprintf(w, "background sync every %s, %s\n", sched.PollingInterval, sched.State)
	} else {
		fmt.Fprintf(w, "background sync off, %s\n", sched.State)
	}
	if sched.NextRun != nil {
		fmt.Fprintf(w, "next pass %s\n", humanize.Time(*sched.NextRun))
	}
	if sched.Pending > 0 {
		fmt.Fprintf(w, "%s queued\n", humanize.Comma(int64(sched.Pending)))
	}

	sum := s.Summary
	fmt.Fprintf(w, "%s synced, %s pending, %s syncing, %s, %s\n",
		green.Render(humanize.Comma(int64(sum.Completed))),
		humanize.Comma(int64(sum.Pending)),
		humanize.Comma(int64(sum.Syncing)),
		red.Render(fmt.Sprintf("%d %s", sum.Conflicted, plural(sum.Conflicted, "conflict"))),
		red.Render(fmt.Sprintf("%d %s", sum.Error, plural(sum.Error, "error"))),
	)

	for _, f := range s.Files {
		switch {
		case f.ConflictState == "conflicted":
			fmt.Fprintf(w, "  %s %s %s\n", red.Render("!"), f.Path, gray.Render("(conflict)"))
		case f.Error != "":
			fmt.Fprintf(w, "  %s %s: %s\n", red.Render("x"), f.Path, f.Error)
		}
	}
}
