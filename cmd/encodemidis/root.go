package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Garik-/midivae/internal/encoder"
	"github.com/Garik-/midivae/internal/walk"
	"github.com/Garik-/midivae/pkg/vae"
)

type options struct {
	inputDir      string
	outputDir     string
	printProgress bool
	config        string
	checkpoint    string
	modelURL      string
	batchSize     int
	extension     string
	debug         bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "encodemidis",
		Short: "Encode a tree of MIDI files into MusicVAE latent vectors",
		Long: `encodemidis walks --input_dir for MIDI files, cuts each one into melody
segments, encodes the segments with a MusicVAE model and saves the mean
latent vectors as .npy matrices under --output_dir, mirroring the input tree.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.inputDir, "input_dir", "", "Directory to search for MIDI files")
	f.StringVar(&opts.outputDir, "output_dir", "", "Directory to write .npy files to")
	f.BoolVar(&opts.printProgress, "print_progress", false, "Log every encoded and every empty file")
	f.StringVar(&opts.config, "config", getEnv(envConfig, defaultConfig), "Model configuration name")
	f.StringVar(&opts.checkpoint, "checkpoint", getEnv(envCheckpoint, defaultCheckpoint), "Checkpoint directory or .tar(.gz) archive holding encoder/{mu,sigma}/{kernel,bias}.npy")
	f.StringVar(&opts.modelURL, "model_url", getEnv(envModelURL, ""), "Base URL of a TensorFlow Serving model server, replaces --checkpoint")
	f.IntVar(&opts.batchSize, "batch_size", 0, "Segments per encode call, 0 uses the configuration default")
	f.StringVar(&opts.extension, "extension", walk.DefaultExtension, "File name suffix of MIDI files")
	f.BoolVar(&opts.debug, "debug", false, "Development logging with debug output")

	_ = cmd.MarkFlagRequired("input_dir")
	_ = cmd.MarkFlagRequired("output_dir")

	return cmd
}

func newModel(opts *options) (*vae.TrainedModel, error) {
	cfg, err := vae.LookupConfig(opts.config)
	if err != nil {
		return nil, err
	}
	if opts.batchSize > 0 {
		cfg.BatchSize = opts.batchSize
	}

	if opts.modelURL != "" {
		return vae.NewTrainedModel(cfg, vae.NewRemoteEncoder(opts.modelURL, cfg, nil)), nil
	}

	enc, err := vae.LoadCheckpoint(opts.checkpoint, cfg)
	if err != nil {
		return nil, err
	}
	return vae.NewTrainedModel(cfg, enc), nil
}

func run(parent context.Context, opts *options) error {
	if opts.batchSize < 0 {
		return errors.Errorf("--batch_size must be >= 0, got %d", opts.batchSize)
	}

	log, err := newLogger(opts.debug)
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer func() { _ = log.Sync() }()

	if opts.debug {
		enableDebugLogging(log)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := newModel(opts)
	if err != nil {
		log.Error("could not load model", zap.Error(err))
		return err
	}
	log.Debug("model loaded",
		zap.String("config", model.Config().Name),
		zap.Int("batch_size", model.Config().BatchSize))

	adapter := encoder.NewAdapter(model, nil, log.Named("encoder"), opts.printProgress)
	_, err = adapter.Run(ctx, encoder.RunOptions{
		InputDir:  opts.inputDir,
		OutputDir: opts.outputDir,
		Walk:      walk.Options{Extension: opts.extension},
	})
	return err
}
