package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newDestroyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the stack",
		Long: "Delete the stack. The image repository and the pipeline artifact bucket " +
			"are retained and have to be removed by hand.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Only the name is needed, but building the stack validates the
			// configuration before anything is deleted.
			s, err := newStack()
			if err != nil {
				return err
			}
			a, err := newAWS(ctx)
			if err != nil {
				return err
			}
			if err := a.DeleteStack(ctx, s.Name(), !noWait, deployTimeout(cmd)); err != nil {
				return err
			}
			logrus.Infof("Stack %s destroyed", s.Name())
			return nil
		},
	}
	addWaitFlags(cmd)
	cmd.Flags().BoolVar(&regionFromInstance, "region-from-instance", false, "use the region of the EC2 instance this runs on")
	return cmd
}
