package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tethercam/tethercam"
	"github.com/tethercam/tethercam/internal/env"
	"github.com/tethercam/tethercam/pkg/gphoto"
)

func newCaptureCmd() *cobra.Command {
	var (
		flagPort    string
		flagSaveDir string
		flagPrefix  string
		flagMock    bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Fire the shutter once and download the frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := buildRunner(flagMock)
			ctx := cmd.Context()

			port := flagPort
			if flagMock && port == "" {
				port = simPort
			}
			if port == "" {
				cameras, err := gphoto.AutoDetect(ctx, runner)
				if err != nil {
					return err
				}
				if len(cameras) == 0 {
					return errors.New("no camera detected; connect one or pass --port")
				}
				port = cameras[0].Port
				log.Info().Str("model", cameras[0].Model).Str("port", port).Msg("using first detected camera")
			}

			saveDir := firstNonEmpty(flagSaveDir, env.String(tethercam.EnvSaveDir, ""), "captures")
			if err := os.MkdirAll(saveDir, 0o755); err != nil {
				return errors.Wrap(err, "create save directory")
			}
			name := fmt.Sprintf("%s_%s_%s.jpg", flagPrefix, portSafe(port), time.Now().Format("20060102_150405"))
			localPath := filepath.Join(saveDir, name)

			if err := gphoto.CaptureAndDownload(ctx, runner, port, localPath); err != nil {
				return err
			}
			log.Info().Str("path", localPath).Msg("captured")
			fmt.Fprintln(cmd.OutOrStdout(), localPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagPort, "port", "", "Camera port (default first detected)")
	cmd.Flags().StringVar(&flagSaveDir, "save-dir", "", "Directory for the frame (default from TETHERCAM_SAVE_DIR or ./captures)")
	cmd.Flags().StringVar(&flagPrefix, "prefix", "capture", "Filename prefix")
	cmd.Flags().BoolVar(&flagMock, "mock", false, "Capture from the simulated camera")
	return cmd
}
