// buildemb builds the initial word-embedding matrix of the dialogue model
// from a vocabulary and a pretrained embedding table.
//
//	buildemb <vocab_file> <pretrained_file> <output_file> [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	internal "github.com/ZanzyTHEbar/hred-go/hred"
	"github.com/ZanzyTHEbar/hred-go/hred/align"
	"github.com/ZanzyTHEbar/hred-go/hred/config"
	"github.com/ZanzyTHEbar/hred-go/hred/embedding"
	"github.com/ZanzyTHEbar/hred-go/hred/pretrained"
	"github.com/ZanzyTHEbar/hred-go/hred/spelling"
	"github.com/ZanzyTHEbar/hred-go/hred/vocab"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage: buildemb <vocab_file> <pretrained_file> <output_file> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := internal.GetLogger()
	if _, err := run(ctx, os.Args[1:], os.Stderr, logger); err != nil {
		logger.Error().Err(err).Msg("Building the embedding matrix failed")
		stop()
		os.Exit(1)
	}
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("buildemb", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.String("config", "", "config file (default searches ./config.yaml and "+internal.DefaultConfigPath+")")
	fs.Int("emb-dim", internal.DefaultEmbeddingDim, "dimensionality of the output embeddings")
	fs.Float64("std-dev", internal.DefaultEmbeddingStdDev, "standard deviation of the output embeddings")
	fs.Bool("apply-spelling-corrections", false, "also try dehyphenation, subwords and spelling suggestions")
	fs.String("spelling-dictionary", "", "word list for spelling suggestions (default: the pretrained vocabulary)")
	fs.Int64("seed", internal.DefaultEmbeddingSeed, "seed for rows not found in the pretrained table")
	fs.Int("workers", 0, "concurrent token resolvers (default: number of CPUs)")
	fs.Usage = func() {
		fmt.Fprintln(out, errUsage)
		fs.PrintDefaults()
	}
	return fs
}

// run builds and saves the matrix and returns the output path.
func run(ctx context.Context, args []string, out io.Writer, logger zerolog.Logger) (string, error) {
	fs := newFlagSet(out)
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return "", errUsage
	}
	vocabPath, pretrainedPath, outputBase := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	configPath, _ := fs.GetString("config")
	cfg, err := config.LoadConfig(configPath, fs)
	if err != nil {
		return "", err
	}
	ec := cfg.Embedding

	logger.Info().Str("path", vocabPath).Msg("Loading vocabulary")
	v, err := vocab.Load(vocabPath)
	if err != nil {
		return "", fmt.Errorf("failed to load vocabulary: %w", err)
	}

	logger.Info().Str("path", pretrainedPath).Msg("Loading pretrained embeddings")
	table, format, err := pretrained.Load(pretrainedPath)
	if err != nil {
		return "", fmt.Errorf("failed to load pretrained embeddings: %w", err)
	}
	logger.Info().
		Str("format", format.String()).
		Int("words", table.Len()).
		Int("dims", table.Dimensions()).
		Int("vocab", v.Len()).
		Msg("Inputs loaded")

	// fail before any resolution work when the table is too narrow
	if err := embedding.CheckDimensions(table.Dimensions(), ec.EmbDim); err != nil {
		return "", err
	}

	var suggester spelling.Suggester
	if ec.ApplySpellingCorrections {
		if ec.SpellingDictionary != "" {
			dict, err := spelling.LoadDictionary(ec.SpellingDictionary)
			if err != nil {
				return "", fmt.Errorf("failed to load spelling dictionary: %w", err)
			}
			suggester = dict
		} else {
			suggester = spelling.DictionaryFromWords(table.Words())
		}
	}

	resolver := align.NewResolver(table, align.Options{
		Markers:                  ec.Markers,
		ApplySpellingCorrections: ec.ApplySpellingCorrections,
		Suggester:                suggester,
		MaxSuggestions:           ec.MaxSuggestions,
		Logger:                   logger,
	})
	builder, err := embedding.NewBuilder(resolver, embedding.Options{
		EmbDim:  ec.EmbDim,
		StdDev:  ec.StdDev,
		Seed:    ec.Seed,
		Workers: ec.Workers,
		Logger:  logger,
	})
	if err != nil {
		return "", err
	}

	res, err := builder.Build(ctx, v, table.Dimensions())
	if err != nil {
		return "", err
	}

	path := embedding.OutputPath(outputBase, ec.OutputSuffix)
	if err := embedding.Save(path, res.Matrix); err != nil {
		return "", err
	}
	rows, cols := res.Matrix.Dims()
	logger.Info().
		Str("path", path).
		Int("rows", rows).
		Int("cols", cols).
		Uint64("random_rows", res.Matrix.NonPretrained.GetCardinality()).
		Msg("Embedding matrix saved")
	return path, nil
}
