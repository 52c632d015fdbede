package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tethercam/tethercam/pkg/gphoto"
)

func newDetectCmd() *cobra.Command {
	var flagMock bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List attached cameras (gphoto2 --auto-detect)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cameras, err := gphoto.AutoDetect(cmd.Context(), buildRunner(flagMock))
			if err != nil {
				return err
			}
			if len(cameras) == 0 {
				log.Info().Msg("no cameras detected")
				return nil
			}
			for _, cam := range cameras {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", cam.Model, cam.Port)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagMock, "mock", false, "Answer from the simulated camera instead of gphoto2")
	return cmd
}
