package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
)

var (
	synthFormat string
	synthOutput string
	synthMatch  string
)

func newSynthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Print the CloudFormation template of the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, t, err := synthesize()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if synthOutput != "" && synthOutput != "-" {
				f, err := os.Create(synthOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeTemplate(out, t, synthFormat, synthMatch)
		},
	}
	cmd.Flags().StringVarP(&synthFormat, "format", "f", "json", "template format, json or yaml")
	cmd.Flags().StringVarP(&synthOutput, "output", "o", "-", "write the template to this file")
	cmd.Flags().StringVar(&synthMatch, "match", "", "only print resources and outputs whose logical id matches this glob")
	return cmd
}

func writeTemplate(out io.Writer, t *cfn.Template, format, match string) error {
	if match != "" {
		filtered, err := t.Filter(match)
		if err != nil {
			return err
		}
		if len(filtered.Resources) == 0 && len(filtered.Outputs) == 0 {
			logrus.Warnf("Nothing in the template matches %q", match)
		}
		t = filtered
	}

	body, err := t.Render(format)
	if err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return fmt.Errorf("writing template: %w", err)
	}
	return nil
}
