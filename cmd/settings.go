package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tethercam/tethercam/pkg/gphoto"
)

func newSettingsCmd() *cobra.Command {
	var (
		flagPort    string
		flagAliases string
		flagMock    bool
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change camera settings by generic name",
		Long: `settings resolves generic names like "iso" or "aperture" against the
camera's own config tree, so the same command works across vendors that
expose the key under different paths.`,
	}
	cmd.PersistentFlags().StringVar(&flagPort, "port", "", "Camera port (default first detected)")
	cmd.PersistentFlags().StringVar(&flagAliases, "aliases", "", "YAML file overriding the setting-name alias table")
	cmd.PersistentFlags().BoolVar(&flagMock, "mock", false, "Talk to the simulated camera")

	setup := func(ctx context.Context) (gphoto.Runner, *gphoto.Resolver, string, error) {
		runner := buildRunner(flagMock)
		var aliases map[string][]string
		if flagAliases != "" {
			loaded, err := gphoto.LoadAliases(flagAliases)
			if err != nil {
				return nil, nil, "", err
			}
			aliases = loaded
		}
		port := flagPort
		if flagMock && port == "" {
			port = simPort
		}
		if port == "" {
			cameras, err := gphoto.AutoDetect(ctx, runner)
			if err != nil {
				return nil, nil, "", err
			}
			if len(cameras) == 0 {
				return nil, nil, "", errors.New("no camera detected; connect one or pass --port")
			}
			port = cameras[0].Port
		}
		return runner, gphoto.NewResolver(runner, aliases), port, nil
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a setting's current value and choices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, resolver, port, err := setup(ctx)
			if err != nil {
				return err
			}
			key, err := resolver.Resolve(ctx, port, args[0])
			if err != nil {
				return err
			}
			value, err := gphoto.GetConfig(ctx, runner, port, key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s = %s\n", args[0], value.Current)
			for _, choice := range value.Choices {
				fmt.Fprintf(out, "  %s\n", choice)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, resolver, port, err := setup(ctx)
			if err != nil {
				return err
			}
			key, err := resolver.Resolve(ctx, port, args[0])
			if err != nil {
				return err
			}
			if err := gphoto.SetConfig(ctx, runner, port, key, args[1]); err != nil {
				return err
			}
			log.Info().Str("port", port).Str("key", key).Str("value", args[1]).Msg("setting applied")
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
