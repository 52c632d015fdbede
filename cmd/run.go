package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tethercam/tethercam"
	"github.com/tethercam/tethercam/internal/env"
	"github.com/tethercam/tethercam/pkg/gphoto"
	"github.com/tethercam/tethercam/pkg/journal"
)

func newRunCmd() *cobra.Command {
	var (
		flagPorts            []string
		flagSaveDir          string
		flagOrganizeByFormat bool
		flagPollInterval     time.Duration
		flagAliases          string
		flagMock             bool
		flagAutoInterval     time.Duration
		flagAutoCount        int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run tethering sessions until interrupted",
		Long: `run starts one tethering session per camera: a detection loop polls the
camera's file listing and a download loop fetches every new file into the
save directory. Without --port, every auto-detected camera is tethered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := buildRunner(flagMock)

			var aliases map[string][]string
			if flagAliases != "" {
				loaded, err := gphoto.LoadAliases(flagAliases)
				if err != nil {
					return err
				}
				aliases = loaded
			}
			resolver := gphoto.NewResolver(runner, aliases)

			saveDir := firstNonEmpty(flagSaveDir, env.String(tethercam.EnvSaveDir, ""), "captures")
			organize := flagOrganizeByFormat || env.Bool(tethercam.EnvOrganizeByFormat, false)
			mgr := tethercam.NewManager(tethercam.ManagerConfig{
				Runner:       runner,
				Paths:        tethercam.NewDateOrganizer(saveDir, organize),
				Resolver:     resolver,
				PollInterval: flagPollInterval,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ports := flagPorts
			if len(ports) == 0 {
				cameras, err := gphoto.AutoDetect(ctx, runner)
				if err != nil {
					return err
				}
				for _, cam := range cameras {
					log.Info().Str("model", cam.Model).Str("port", cam.Port).Msg("camera detected")
					ports = append(ports, cam.Port)
				}
			}
			if len(ports) == 0 {
				return errors.New("no cameras to tether: none detected and no --port given")
			}

			group, groupCtx := errgroup.WithContext(ctx)

			printerEvents, printerUnsub := mgr.Subscribe()
			defer printerUnsub()
			tethercam.GoSafe(groupCtx, group, "event-printer", func(ctx context.Context) error {
				return printEvents(ctx, printerEvents)
			})

			if dbPath := env.String(journal.EnvDatabasePath, ""); dbPath != "" {
				j, err := journal.Open(dbPath)
				if err != nil {
					return err
				}
				defer j.Close()
				journalEvents, journalUnsub := mgr.Subscribe()
				defer journalUnsub()
				tethercam.GoSafe(groupCtx, group, "journal-pump", func(ctx context.Context) error {
					return j.Pump(ctx, journalEvents)
				})
				log.Info().Str("db", dbPath).Msg("capture journal enabled")
			}

			started := 0
			for _, port := range ports {
				if !mgr.Start(port) {
					continue
				}
				started++
				if flagAutoInterval > 0 {
					mgr.StartAutoCapture(port, flagAutoInterval, flagAutoCount)
				}
			}
			if started == 0 {
				return errors.New("no tethering session could be started")
			}
			log.Info().Int("sessions", started).Str("save_dir", saveDir).Msg("tethering running, Ctrl-C to stop")

			<-ctx.Done()
			log.Info().Msg("shutting down tethering sessions")
			mgr.StopAll()
			stop()
			_ = group.Wait()
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&flagPorts, "port", nil, "Camera port to tether (repeatable; default all detected)")
	cmd.Flags().StringVar(&flagSaveDir, "save-dir", "", "Base directory for downloads (default from TETHERCAM_SAVE_DIR or ./captures)")
	cmd.Flags().BoolVar(&flagOrganizeByFormat, "organize-by-format", false, "Sort downloads into RAW/JPEG/TIFF subdirectories")
	cmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 0, "Camera file-listing poll interval (default from TETHERCAM_POLL_INTERVAL or 1s)")
	cmd.Flags().StringVar(&flagAliases, "aliases", "", "YAML file overriding the setting-name alias table")
	cmd.Flags().BoolVar(&flagMock, "mock", false, "Tether a simulated camera; combine with --auto-capture-interval for a demo")
	cmd.Flags().DurationVar(&flagAutoInterval, "auto-capture-interval", 0, "Fire the shutter on this interval (0 disables)")
	cmd.Flags().IntVar(&flagAutoCount, "auto-capture-count", 0, "Stop auto-capture after this many frames (0 = unbounded)")
	return cmd
}

// printEvents logs the event stream for interactive runs; it returns when the
// channel closes or ctx fires.
func printEvents(ctx context.Context, events <-chan tethercam.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(ev)
		}
	}
}

func logEvent(ev tethercam.Event) {
	switch ev.Type {
	case tethercam.EventFileAdded:
		log.Info().Str("port", ev.Port).Str("path", ev.Payload["path"]).Msg("new file on camera")
	case tethercam.EventFileDownloaded:
		log.Info().Str("port", ev.Port).Str("local", ev.Payload["local_path"]).Msg("downloaded")
	case tethercam.EventDeviceBusy:
		log.Debug().Str("port", ev.Port).Msg("camera busy")
	case tethercam.EventDeviceReady:
		log.Debug().Str("port", ev.Port).Msg("camera ready")
	case tethercam.EventError:
		log.Error().Str("port", ev.Port).Str("message", ev.Payload["message"]).Msg("tethering error")
	}
}
