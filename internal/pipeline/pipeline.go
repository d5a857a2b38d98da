// Package pipeline runs one statement file through analysis, extraction,
// parsing, normalization and validation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/analyzer"
	"github.com/insightdelivered/statement-reconciler/internal/extractor"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/normalizer"
	"github.com/insightdelivered/statement-reconciler/internal/parser"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
	"github.com/insightdelivered/statement-reconciler/internal/validator"
)

// Result is everything one run learned about a statement.
type Result struct {
	Format     models.Format
	Strategy   string
	Metadata   models.StatementMetadata
	Method     models.ExtractionMethod
	ParserUsed string
	Validation models.ValidationResult
	Summary    models.Summary
}

// Pipeline holds read-only collaborators; a single Pipeline may process
// many statements concurrently.
type Pipeline struct {
	templates  *templates.Set
	analyzer   *analyzer.Analyzer
	extractors *extractor.Set
	classifier parser.Classifier
	threshold  float64
	validator  *validator.Validator
	chunkSize  int
	log        zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithTemplates(set *templates.Set) Option {
	return func(p *Pipeline) { p.templates = set }
}

// WithExtractors replaces the default extractor set, which has no OCR engine.
func WithExtractors(set *extractor.Set) Option {
	return func(p *Pipeline) { p.extractors = set }
}

// WithClassifier enables model categorization above threshold. A threshold
// of zero keeps parser.DefaultThreshold.
func WithClassifier(c parser.Classifier, threshold float64) Option {
	return func(p *Pipeline) {
		p.classifier = c
		p.threshold = threshold
	}
}

func WithValidator(v *validator.Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithChunkSize sets the extraction window.
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		chunkSize: extractor.DefaultChunkSize,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.templates == nil {
		p.templates = templates.NewSet()
	}
	if p.extractors == nil {
		p.extractors = extractor.NewSet(p.log, nil)
	}
	if p.validator == nil {
		p.validator = validator.New(validator.WithLogger(p.log))
	}
	p.analyzer = analyzer.New(p.templates, p.log)
	return p
}

// Process runs the whole pipeline over the file at path. bankHint, when it
// names a known template, overrides detection. The returned error is non-nil
// only for fatal conditions (see models.IsFatal) or cancellation; validation
// problems are reported in Result.Validation.
func (p *Pipeline) Process(ctx context.Context, path, bankHint string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &models.SourceError{Path: path, Err: err}
	}

	st := p.analyzer.Analyze(ctx, path)
	if bankHint != "" {
		if t, ok := p.templates.Get(bankHint); ok {
			st.Template = t
		} else {
			p.log.Warn().Str("bank", bankHint).Msg("no template for bank hint, using detection")
		}
	}
	log := p.log.With().Str("path", path).Str("format", string(st.Format)).Str("template", st.TemplateName()).Logger()

	ext, err := p.extractors.For(st.Format)
	if err != nil {
		return nil, err
	}
	cur, err := ext.Open(ctx, extractor.Source{Path: path, Format: st.Format, Template: st.Template})
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	prs := parser.New(
		parser.WithTemplate(st.Template),
		parser.WithClassifier(p.classifier),
		parser.WithThreshold(p.threshold),
		parser.WithLogger(log),
	)
	var normOpts []normalizer.Option
	if st.Template != nil && st.Template.DateLayout() != "" {
		normOpts = append(normOpts, normalizer.WithDateLayouts(st.Template.DateLayout()))
	}
	norm := normalizer.New(normOpts...)

	var txns []models.Transaction
	for {
		rows, err := cur.Next(ctx, p.chunkSize)
		txns = append(txns, norm.Normalize(prs.Parse(rows))...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", path, err)
		}
		log.Debug().Int("offset", cur.Offset()).Msg("chunk processed")
	}

	meta := cur.Metadata()
	if meta.DetectedTemplate == "" {
		meta.DetectedTemplate = st.TemplateName()
	}

	res := &Result{
		Format:     st.Format,
		Strategy:   st.Strategy(),
		Metadata:   meta,
		Method:     cur.Method(),
		ParserUsed: prs.Name(),
		Validation: p.validator.Validate(meta, txns),
	}
	res.Summary = models.Summarize(res.Validation.Transactions)

	log.Info().
		Str("method", string(res.Method)).
		Int("rows", cur.Offset()).
		Int("transactions", len(txns)).
		Bool("valid", res.Validation.IsValid).
		Msg("statement processed")
	return res, nil
}

// Validate re-runs reconciliation over stored transactions.
func (p *Pipeline) Validate(meta models.StatementMetadata, txns []models.Transaction) models.ValidationResult {
	return p.validator.Validate(meta, txns)
}

// Templates returns the template set in use.
func (p *Pipeline) Templates() *templates.Set {
	return p.templates
}
