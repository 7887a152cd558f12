package main

import (
	"github.com/spf13/cobra"

	"torrentstore/internal/config"
	"torrentstore/internal/logging"
)

// cli holds what every subcommand shares once flags are parsed.
type cli struct {
	cfgFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "torrentstore",
		Short: "Fetch guest images onto XenServer hosts over BitTorrent",
		Long: `torrentstore resolves an image's .torrent descriptor from a configured base URL
and asks the "bittorrent" dom0 plugin to download it into the host's storage
repository. Images can only be downloaded this way, never uploaded.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			logging.Configure(logOptions(cfg.Log))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "torrentstore.yml", "config file; missing files fall back to defaults and env")

	root.AddCommand(
		newDownloadCmd(c),
		newUploadCmd(c),
		newURLCmd(c),
		newRelayCmd(c),
	)
	return root
}

func logOptions(l config.Log) logging.Options {
	return logging.Options{Level: l.Level, JSON: l.JSON, File: l.File, MaxSizeMB: l.MaxSizeMB}
}
