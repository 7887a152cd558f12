package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"torrentstore/internal/engine"
	"torrentstore/internal/image"
)

type downloadResult struct {
	ImageID  string   `json:"image_id" yaml:"image_id"`
	Instance string   `json:"instance,omitempty" yaml:"instance,omitempty"`
	VDIs     []string `json:"vdis" yaml:"vdis"`
}

func newDownloadCmd(c *cli) *cobra.Command {
	var (
		imageID      string
		instance     string
		instanceName string
		output       string
	)
	cmd := &cobra.Command{
		Use:     "download",
		Short:   "Download an image into the host's storage repository",
		Example: `  torrentstore download --image-id 6b1c0e36-0c4e-4a49-9d7a-1f4f2c7c9a10 --instance 3f2a9c1e-5d7b-4e80-a1c4-92b0d6e7f315 --instance-name web-01 -o yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unknown output format %q (want json|yaml)", output)
			}
			ctx := cmd.Context()
			e, err := engine.Bootstrap(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(ctx) }()

			vdis, err := e.Download(ctx, image.Instance{UUID: instance, Name: instanceName}, imageID)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), output, downloadResult{ImageID: imageID, Instance: instance, VDIs: vdis})
		},
	}
	cmd.Flags().StringVar(&imageID, "image-id", "", "image to download")
	cmd.Flags().StringVar(&instance, "instance", "", "uuid of the instance the image is for")
	cmd.Flags().StringVar(&instanceName, "instance-name", "", "name of the instance, for logs and notifications")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json|yaml")
	_ = cmd.MarkFlagRequired("image-id")
	return cmd
}

func writeResult(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
