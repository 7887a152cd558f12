package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"torrentstore/internal/image"
)

func newURLCmd(c *cli) *cobra.Command {
	var imageID string
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the torrent descriptor URL for an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := image.NewBittorrentStore(c.cfg.XenServer).TorrentURL(imageID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
			return err
		},
	}
	cmd.Flags().StringVar(&imageID, "image-id", "", "image to resolve")
	_ = cmd.MarkFlagRequired("image-id")
	return cmd
}
