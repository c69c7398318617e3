package main

import (
	"eiscore/internal/codec"
	"eiscore/internal/infra/persistence/file"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "migrate <document>",
		Short: "Rewrite a document in the current format version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			upgraded, h, err := codec.Upgrade(data)
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0]
			}
			if err := file.New().Write(cmd.Context(), output, upgraded); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: version %d -> %d (%s)\n", output, h.Version, codec.CurrentVersion, h.Mode)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write here instead of in place")
	return cmd
}
