// Package cli implements the xrayperf command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrThresholdsFailed is returned by run when the test completed but at
// least one threshold did not pass.
var ErrThresholdsFailed = errors.New("thresholds failed")

// ErrInterrupted is returned by run when the run was stopped before its
// load profile finished.
var ErrInterrupted = errors.New("run interrupted")

// NewRootCmd returns the xrayperf command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "xrayperf",
		Short:   "Load test a JFrog Xray and Artifactory deployment",
		Version: version,
		Long: `xrayperf drives virtual users against the Xray and Artifactory REST APIs:
it creates repositories, policies and watches, applies watches, and polls
scan status, violations and repository configuration, then reports latency,
throughput and failures per operation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newTemplatesCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the command line and returns the error to exit with.
func Execute() error {
	err := NewRootCmd().ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, ErrThresholdsFailed) && !errors.Is(err, ErrInterrupted) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
