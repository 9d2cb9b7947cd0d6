package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newOutputsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "Print the outputs of the deployed stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newStack()
			if err != nil {
				return err
			}
			a, err := newAWS(ctx)
			if err != nil {
				return err
			}
			info, err := a.DescribeStack(ctx, s.Name())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Stack\t%s\n", info.Name)
			fmt.Fprintf(w, "Status\t%s\n", info.Status)
			for _, key := range info.OutputKeys() {
				fmt.Fprintf(w, "%s\t%s\n", key, info.Outputs[key])
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&regionFromInstance, "region-from-instance", false, "use the region of the EC2 instance this runs on")
	return cmd
}
