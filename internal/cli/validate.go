package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/xray"
)

func newValidateCmd() *cobra.Command {
	opts := &configOptions{}
	var noColor bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration without running it",
		Long: `Load the configuration the same way run does (file, .env, environment and
flags), validate it, and print the resolved load profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ok := color.New(color.FgGreen)
			if noColor {
				ok.DisableColor()
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, ok.Sprint("✓ configuration is valid"))
			printProfile(w, cfg)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func printProfile(w io.Writer, cfg *config.Config) {
	l := cfg.Load

	fmt.Fprintf(w, "  Name:        %s\n", cfg.Name)
	fmt.Fprintf(w, "  Target:      %s\n", cfg.Target.Redacted())
	fmt.Fprintf(w, "  Executor:    %s\n", l.Executor)

	switch l.Executor {
	case config.ExecutorConstantVUs:
		fmt.Fprintf(w, "  VUs:         %d for %s\n", l.VUs, l.Duration)
	case config.ExecutorRampingVUs:
		stages := make([]string, len(l.Stages))
		for i, s := range l.Stages {
			stages[i] = fmt.Sprintf("%s→%d", s.Duration, s.Target)
		}
		fmt.Fprintf(w, "  Stages:      %s (%s)\n", strings.Join(stages, ", "), l.TotalDuration())
	case config.ExecutorConstantArrivalRate:
		fmt.Fprintf(w, "  Rate:        %g/s for %s (VUs %d to %d)\n", l.Rate, l.Duration, l.PreAllocatedVUs, l.MaxVUs)
	}

	if t := cfg.ThinkTime; t != nil {
		fmt.Fprintf(w, "  Think time:  %s to %s\n", t.Min, t.Max)
	}

	keys := cfg.Templates
	if len(keys) == 0 {
		keys = xray.Keys()
	}
	fmt.Fprintf(w, "  Templates:   %s\n", strings.Join(keys, ", "))
}
