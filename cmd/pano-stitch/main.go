package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/menta2k/panostitch"
	"github.com/menta2k/panostitch/internal/config"
	"github.com/menta2k/panostitch/internal/logger"
	"github.com/menta2k/panostitch/internal/utils"
	"github.com/menta2k/panostitch/pkg/stitcher/opencv"
)

type options struct {
	out        string
	configPath string
	format     string
	logLevel   string
	maxWidth   int
	quality    int
	threshold  float64
	crop       bool
	lossless   bool
	createDirs bool
	jsonLog    bool
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

func buildRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pano-stitch [flags] <image|dir>...",
		Short: "Stitch overlapping photographs into a panorama",
		Long: `pano-stitch stitches an ordered sequence of overlapping photographs into one
panorama with OpenCV and trims the black border left by compositing.

Directory arguments expand to the images they contain, sorted by name.

Examples:
  pano-stitch -o pano.jpg left.jpg middle.jpg right.jpg
  pano-stitch -o pano.webp --lossless ./shots
  pano-stitch -o pano.png --crop=false --max-width 2048 ./shots`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "output panorama path; the extension selects the format")
	f.IntVar(&opts.maxWidth, "max-width", defaults.Stitch.MaxWidth, "scale inputs wider than this down before stitching")
	f.BoolVar(&opts.crop, "crop", defaults.Stitch.Crop, "trim the black border from the stitched panorama")
	f.StringVar(&opts.format, "format", "", "output format overriding the extension: jpg|png|webp|tif|bmp|gif")
	f.IntVar(&opts.quality, "quality", defaults.Output.Quality, "JPEG/WebP output quality (1-100)")
	f.BoolVar(&opts.lossless, "lossless", defaults.Output.Lossless, "WebP lossless output")
	f.BoolVar(&opts.createDirs, "create-dirs", defaults.Output.CreateDirs, "create missing output directories when the panorama is written")
	f.Float64Var(&opts.threshold, "threshold", defaults.Cropper.BlackThreshold, "largest fraction of black pixels a border may hold")
	f.StringVar(&opts.configPath, "config", "", "configuration file (.json or .toml)")
	f.StringVar(&opts.logLevel, "log-level", defaults.Log.Level, "log level: trace|debug|info|warn|error|disabled")
	f.BoolVar(&opts.jsonLog, "json-log", defaults.Log.JSON, "emit logs as JSON")
	_ = cmd.MarkFlagRequired("out")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// resolveConfig loads the configuration file, if any, and applies the flags
// the user set explicitly on top of it.
func resolveConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	path := opts.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("max-width") {
		cfg.Stitch.MaxWidth = opts.maxWidth
	}
	if f.Changed("crop") {
		cfg.Stitch.Crop = opts.crop
	}
	if f.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if f.Changed("quality") {
		cfg.Output.Quality = opts.quality
	}
	if f.Changed("lossless") {
		cfg.Output.Lossless = opts.lossless
	}
	if f.Changed("create-dirs") {
		cfg.Output.CreateDirs = opts.createDirs
	}
	if f.Changed("threshold") {
		cfg.Cropper.BlackThreshold = opts.threshold
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("json-log") {
		cfg.Log.JSON = opts.jsonLog
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"), "check the flags and the configuration file")
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}

	paths, err := utils.ExpandInputs(args)
	if err != nil {
		return err
	}

	mode := opencv.ModePanorama
	if cfg.Stitch.Mode == "scans" {
		mode = opencv.ModeScans
	}
	ps := panostitch.NewWithConfig(cfg.ProcessingConfig(), cfg.CropConfig(), opencv.NewWithMode(mode))
	ps.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().
		Int("inputs", len(paths)).
		Int("max_width", cfg.Stitch.MaxWidth).
		Bool("crop", cfg.Stitch.Crop).
		Str("output", opts.out).
		Msg("stitching")

	result, err := ps.Stitch(ctx, paths, opts.out, cfg.Stitch.MaxWidth, cfg.Stitch.Crop)
	if err != nil {
		return err
	}

	state := "uncropped"
	if result.Cropped {
		state = "cropped to " + result.ROI.String()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d images, panorama %s, %s\n",
		result.OutputPath, len(result.Inputs), result.Panorama, state)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
