package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Headless participant for Huddle mesh rooms",
	Long: `huddle joins a Huddle coordinator as a participant: it lists rooms,
creates or joins one, chats with the other members and sends files to them
over direct peer connections.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.String("server", "", "coordinator signal endpoint (ws://host:port/api/ws/signal)")
	fs.String("nickname", "", "display name")
	fs.StringSlice("stun", nil, "STUN server URLs")
	fs.String("download-dir", "", "where received files are stored")
	fs.Bool("video", false, "announce a video track")
	fs.String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(roomsCmd, createCmd, joinCmd)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"server":       "server_url",
	"nickname":     "nickname",
	"stun":         "stun_urls",
	"download-dir": "download_dir",
	"video":        "video",
	"log-level":    "log_level",
}

func bindFlags(fs *pflag.FlagSet) func(*viper.Viper) error {
	return func(v *viper.Viper) error {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
		return nil
	}
}

func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(bindFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))
	return cfg, nil
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("huddle")
		cancel()
		os.Exit(1)
	}
}
