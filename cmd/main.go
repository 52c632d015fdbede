package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tethercam/tethercam/internal/envload"
)

var rootCmd = &cobra.Command{
	Use:   "tethercam",
	Short: "Tethered shooting agent for gphoto2-controlled cameras",
	Long: `tethercam drives physically attached cameras through the gphoto2
command-line tool: it detects cameras, runs a per-device tethering session
that downloads every new capture as it appears, applies settings by generic
name, and optionally fires the shutter on a timer.`,
}

var rootGphotoBin string

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootGphotoBin, "gphoto-bin", "", "gphoto2 binary override (default from TETHERCAM_GPHOTO_BIN)")
	rootCmd.AddCommand(
		newDetectCmd(),
		newRunCmd(),
		newCaptureCmd(),
		newSettingsCmd(),
	)
	_ = envload.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("tethercam command failed")
	}
}
