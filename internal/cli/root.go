// Package cli implements the statement-reconciler command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-reconciler/internal/classifier"
	"github.com/insightdelivered/statement-reconciler/internal/config"
	"github.com/insightdelivered/statement-reconciler/internal/extractor"
	"github.com/insightdelivered/statement-reconciler/internal/logger"
	"github.com/insightdelivered/statement-reconciler/internal/pipeline"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
	"github.com/insightdelivered/statement-reconciler/internal/validator"
)

const version = "1.0.0"

// Execute runs the root command with os.Args.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// options is state shared by every subcommand of one root command.
type options struct {
	cfgFile string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Extract, verify and export bank statement transactions",
		Long: `Bank statement reconciler
by Insight Delivered (QEA AutoLens)

Reads bank statements as PDF, scanned image or spreadsheet, extracts their
transactions, checks them against the stated running balance and exports
the verified ones.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (YAML)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newProcessCmd(opts),
		newValidateCmd(opts),
		newServeCmd(opts),
		newTrainCmd(opts),
		newTemplatesCmd(opts),
	)
	return root
}

// load reads the configuration and builds the logger for cmd.
func (o *options) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Build(o.cfgFile, cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
	cmd.SetContext(logger.WithContext(cmd.Context(), log))
	return cfg, log, nil
}

// buildPipeline wires templates, OCR, the category model and the validator
// from cfg.
func buildPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline.Pipeline, error) {
	set, err := templates.Load(cfg.Templates.Dir)
	if err != nil {
		return nil, err
	}

	ocr, err := buildOCR(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	tol, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithTemplates(set),
		pipeline.WithExtractors(extractor.NewSet(log, ocr)),
		pipeline.WithValidator(validator.New(validator.WithTolerance(tol), validator.WithLogger(log))),
		pipeline.WithChunkSize(cfg.Pipeline.ChunkSize),
	}
	if cfg.Classifier.ModelPath != "" {
		model, err := classifier.Load(cfg.Classifier.ModelPath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Classifier.ModelPath).Strs("categories", model.Categories()).Msg("category model loaded")
		opts = append(opts, pipeline.WithClassifier(model, cfg.Classifier.Threshold))
	}
	return pipeline.New(opts...), nil
}

// buildOCR returns nil when OCR is disabled. Gemini falls back to tesseract
// when the local binary is installed.
func buildOCR(ctx context.Context, cfg *config.Config, log zerolog.Logger) (extractor.OCR, error) {
	tesseract := &extractor.Tesseract{
		Cmd:  cfg.OCR.TesseractCmd,
		Lang: cfg.OCR.Lang,
		PSM:  cfg.OCR.PSM,
	}

	switch cfg.OCR.Engine {
	case config.EngineNone:
		return nil, nil
	case config.EngineGemini:
		gemini, err := extractor.NewGemini(ctx, cfg.OCR.GeminiAPIKey, cfg.OCR.GeminiModel)
		if err != nil {
			return nil, err
		}
		engines := []extractor.OCR{gemini}
		if tesseract.Available() {
			engines = append(engines, tesseract)
		}
		return &extractor.Fallback{Engines: engines, Log: log}, nil
	default:
		if !tesseract.Available() {
			log.Warn().Str("cmd", cfg.OCR.TesseractCmd).Msg("tesseract not found, scanned statements will fail")
		}
		return tesseract, nil
	}
}
