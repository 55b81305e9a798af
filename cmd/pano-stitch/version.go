package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/menta2k/panostitch"
	"github.com/menta2k/panostitch/pkg/stitcher/opencv"
)

type versionInfo struct {
	Version   string `json:"version"`
	GoCV      string `json:"gocv"`
	OpenCV    string `json:"opencv"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show pano-stitch version information",
		Long:  `Display the library version together with the gocv binding and the OpenCV library it links against.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")

			info := versionInfo{
				Version:   panostitch.GetVersion(),
				GoCV:      opencv.BindingVersion(),
				OpenCV:    opencv.Version(),
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(output))
				return nil
			}
			fmt.Fprintf(out, "pano-stitch %s\n", info.Version)
			fmt.Fprintf(out, "gocv: %s\n", info.GoCV)
			fmt.Fprintln(out, panostitch.OpenCVVersion())
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
	return cmd
}
