package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/TylerBrock/colorjson"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/xrayperf/internal/xray"
)

type templatesOptions struct {
	showPayload bool
	seed        int64
	noColor     bool
}

func newTemplatesCmd() *cobra.Command {
	opts := &templatesOptions{}

	cmd := &cobra.Command{
		Use:   "templates [key...]",
		Short: "List the request templates a run draws from",
		Long: `List every request template with its method, path and the status codes
that count as success. Pass keys to show only those templates.

  xrayperf templates
  xrayperf templates create-policy --show-payload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTemplates(cmd.OutOrStdout(), args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.showPayload, "show-payload", false, "Print an example request body for each template")
	f.Int64Var(&opts.seed, "seed", 1, "Seed for the generated names in example payloads")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	return cmd
}

func listTemplates(w io.Writer, keys []string, opts *templatesOptions) error {
	templates, err := xray.Select(keys)
	if err != nil {
		return fmt.Errorf("%w (valid: %v)", err, xray.Keys())
	}

	header := color.New(color.Bold)
	method := color.New(color.FgBlue, color.Bold)
	faint := color.New(color.Faint)
	if opts.noColor {
		for _, c := range []*color.Color{header, method, faint} {
			c.DisableColor()
		}
	}

	if !opts.showPayload {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tMETHOD\tPATH\tEXPECTED")
		for _, t := range templates {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Key, t.Name, t.Method, t.Path, t.Expected)
		}
		return tw.Flush()
	}

	builder := xray.NewBuilder(xray.NewNameGenerator(xray.NewRand(opts.seed)), xray.Fixtures{})
	formatter := colorjson.NewFormatter()
	formatter.Indent = 2
	formatter.DisabledColor = opts.noColor || color.NoColor

	for i, t := range templates {
		if i > 0 {
			fmt.Fprintln(w)
		}
		req, err := t.Build(builder)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s  %s\n", header.Sprint(t.Name), faint.Sprint("("+t.Key+")"))
		fmt.Fprintf(w, "%s %s\n", method.Sprint(req.Method), req.Path)
		fmt.Fprintf(w, "Expected: %s\n", t.Expected)

		if len(req.Body) == 0 {
			fmt.Fprintln(w, "(no body)")
			continue
		}
		var body interface{}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}
		pretty, err := formatter.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}
		fmt.Fprintln(w, string(pretty))
	}
	return nil
}
