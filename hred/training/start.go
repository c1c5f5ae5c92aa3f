package training

import (
	"context"
	"fmt"

	internal "github.com/ZanzyTHEbar/hred-go/hred"
	"github.com/ZanzyTHEbar/hred-go/hred/config"
	"github.com/ZanzyTHEbar/hred-go/hred/db"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Flags returns the command-line surface of a training run. The "prefix",
// "save-dir" and "registry-dsn" flags override the loaded configuration
// when the set is passed to config.LoadConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	fs.String("config", "", "prototype config file (default searches ./config.yaml and "+internal.DefaultConfigPath+")")
	fs.String("resume", "", "resume path of a saved checkpoint, <saveDir>/<runId>_<prefix> without the trailing underscore")
	fs.Bool("auto-restart", false, "keep an auto checkpoint and resume from it when one exists")
	fs.Bool("save-every-valid-iteration", false, "keep a model copy at every validation round")
	fs.Bool("reinitialize-decoder-parameters", false, "reinitialise the decoder parameters when resuming")
	fs.Bool("reinitialize-latent-variable-parameters", false, "reinitialise the latent variable parameters when resuming")
	fs.Bool("force-train-all-wordemb", false, "train pretrained word embeddings even when the prototype fixes them")
	fs.String("prefix", "", "checkpoint prefix")
	fs.String("save-dir", "", "checkpoint directory")
	fs.String("registry-dsn", "", "checkpoint registry database, a path or libsql URL (empty disables it)")
	return fs
}

// OptionsFromFlags reads the run options out of a parsed Flags set.
func OptionsFromFlags(fs *pflag.FlagSet) (Options, error) {
	var opts Options
	var err error
	if opts.Resume, err = fs.GetString("resume"); err != nil {
		return opts, err
	}
	bools := []struct {
		name string
		dst  *bool
	}{
		{"auto-restart", &opts.AutoRestart},
		{"save-every-valid-iteration", &opts.SaveEveryValid},
		{"reinitialize-decoder-parameters", &opts.ReinitializeDecoder},
		{"reinitialize-latent-variable-parameters", &opts.ReinitializeLatent},
		{"force-train-all-wordemb", &opts.ForceTrainAllWordEmb},
	}
	for _, b := range bools {
		if *b.dst, err = fs.GetBool(b.name); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// Start runs a training session end to end: it maps fs onto Options, opens
// the configured registry, resolves the session and runs the loop. The
// registry is closed before Start returns.
func Start(ctx context.Context, cfg *config.Config, fs *pflag.FlagSet, model Model, train, valid Iterator, logger zerolog.Logger) (*Summary, error) {
	if cfg == nil || fs == nil {
		return nil, fmt.Errorf("invalid input: config and flags are required")
	}
	opts, err := OptionsFromFlags(fs)
	if err != nil {
		return nil, err
	}
	opts.Logger = logger

	reg, err := db.FromConfig(cfg.Registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint registry: %w", err)
	}
	if reg != nil {
		defer func() {
			if err := reg.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close checkpoint registry")
			}
		}()
		opts.Registry = reg
	}

	sess, err := Prepare(*NewState(cfg.Training), opts)
	if err != nil {
		return nil, err
	}
	trainer, err := NewTrainer(sess, model, train, valid, opts)
	if err != nil {
		return nil, err
	}
	return trainer.Run(ctx)
}
