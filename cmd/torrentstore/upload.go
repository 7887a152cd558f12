package main

import (
	"github.com/spf13/cobra"

	"torrentstore/internal/image"
)

func newUploadCmd(c *cli) *cobra.Command {
	var (
		imageID  string
		instance string
		vdis     []string
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an image (always fails: the bittorrent store is download-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// no session is opened: the store refuses before touching the host
			store := image.NewBittorrentStore(c.cfg.XenServer)
			return store.UploadImage(cmd.Context(), nil, image.Instance{UUID: instance}, imageID, vdis)
		},
	}
	cmd.Flags().StringVar(&imageID, "image-id", "", "image to upload")
	cmd.Flags().StringVar(&instance, "instance", "", "uuid of the source instance")
	cmd.Flags().StringSliceVar(&vdis, "vdi", nil, "VDI uuids making up the image")
	return cmd
}
