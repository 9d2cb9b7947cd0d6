package main

import (
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/cloud/awscloud"
)

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the synthesized template with the deployed one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, t, err := synthesize()
			if err != nil {
				return err
			}
			body, err := t.CompactJSON()
			if err != nil {
				return err
			}

			a, err := newAWS(ctx)
			if err != nil {
				return err
			}
			deployed, err := a.StackTemplate(ctx, s.Name())
			if errors.Is(err, awscloud.ErrStackNotFound) {
				logrus.Infof("Stack %s is not deployed yet, everything would be created", s.Name())
				return nil
			}
			if err != nil {
				return err
			}

			diff, err := templateDiff([]byte(deployed), body)
			if err != nil {
				return err
			}
			if diff == "" {
				logrus.Infof("Stack %s is up to date", s.Name())
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		},
	}
	cmd.Flags().BoolVar(&regionFromInstance, "region-from-instance", false, "use the region of the EC2 instance this runs on")
	return cmd
}

// templateDiff compares two templates by content, so formatting and key
// order do not show up as changes.
func templateDiff(deployed, synthesized []byte) (string, error) {
	old, err := cfn.Normalize(deployed)
	if err != nil {
		return "", fmt.Errorf("deployed template: %w", err)
	}
	current, err := cfn.Normalize(synthesized)
	if err != nil {
		return "", fmt.Errorf("synthesized template: %w", err)
	}
	return cmp.Diff(old, current), nil
}
