// Package explainer turns a bill item into a validated explanation and an
// illustration description. It owns prompt building, generation, extraction,
// defaults and memoization.
package explainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lamim/medibill/internal/extract"
	"github.com/lamim/medibill/internal/llm"
	"github.com/lamim/medibill/internal/memo"
	"github.com/lamim/medibill/internal/metrics"
	"github.com/lamim/medibill/internal/store"
	"github.com/lamim/medibill/internal/util"
	"github.com/lamim/medibill/pkg/models"
)

// rawLogLimit bounds how much of a bad response is written to the log
const rawLogLimit = 300

// ErrPrompt wraps template rendering failures
var ErrPrompt = errors.New("render prompt")

// ErrUnsupportedLanguage is returned for a language outside models.Languages
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Templates are the prompt templates the service renders
type Templates struct {
	Explanation  string
	Illustration string
}

// Options configures a Service
type Options struct {
	Explainer         llm.Generator
	Illustrator       llm.Generator // defaults to Explainer
	Extractor         *extract.Extractor
	Memo              memo.Store
	Templates         Templates
	DefaultDisclaimer string
	Metrics           *metrics.Collector
	Logger            *slog.Logger
}

// Service is safe for concurrent use
type Service struct {
	explainer         llm.Generator
	illustrator       llm.Generator
	extractor         *extract.Extractor
	memo              memo.Store
	templates         Templates
	defaultDisclaimer string
	metrics           *metrics.Collector
	logger            *slog.Logger
}

// New creates a Service
func New(opts Options) (*Service, error) {
	if opts.Explainer == nil {
		return nil, errors.New("explainer: generator is required")
	}
	if opts.Memo == nil {
		return nil, errors.New("explainer: memo store is required")
	}
	if opts.Illustrator == nil {
		opts.Illustrator = opts.Explainer
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector(opts.Logger)
	}

	return &Service{
		explainer:         opts.Explainer,
		illustrator:       opts.Illustrator,
		extractor:         opts.Extractor,
		memo:              opts.Memo,
		templates:         opts.Templates,
		defaultDisclaimer: opts.DefaultDisclaimer,
		metrics:           opts.Metrics,
		logger:            opts.Logger.With("component", "explainer"),
	}, nil
}

// ExplanationPrompt renders the explanation prompt for item in prefs
func (s *Service) ExplanationPrompt(item models.BillItem, prefs models.Preferences) (string, error) {
	lang, err := normalizeLanguage(prefs.Language)
	if err != nil {
		return "", err
	}

	prompt, err := util.RenderTemplate(s.templates.Explanation, map[string]interface{}{
		"Item":                item.Name,
		"Category":            item.Category,
		"Cost":                store.FormatRupees(item.Cost),
		"LanguageInstruction": util.LanguageInstruction(lang),
		"FamilyMode":          prefs.FamilyMode,
		"FamilyInstruction":   util.FamilyModeInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPrompt, err)
	}
	return prompt, nil
}

// IllustrationPrompt renders the illustration prompt for item
func (s *Service) IllustrationPrompt(item models.BillItem) (string, error) {
	prompt, err := util.RenderTemplate(s.templates.Illustration, map[string]interface{}{
		"Item":     item.Name,
		"Category": item.Category,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPrompt, err)
	}
	return prompt, nil
}

// Explain returns the explanation for item, generating it on a memo miss.
// Extraction failures are returned wrapped so errors.Is(err, extract.ErrX) works.
func (s *Service) Explain(ctx context.Context, item models.BillItem, prefs models.Preferences) (models.ExplanationResult, error) {
	if prefs.Language == "" {
		prefs.Language = models.LanguageEnglish
	}
	result := models.ExplanationResult{Item: item, Preferences: prefs}

	prompt, err := s.ExplanationPrompt(item, prefs)
	if err != nil {
		return result, err
	}

	key := memo.Key(memo.KindExplanation, item.ID, prompt)
	if data, ok := s.lookup(ctx, memo.KindExplanation, key); ok {
		var cached models.BillingExplanation
		if err := json.Unmarshal(data, &cached); err == nil {
			result.Explanation = cached
			result.Cached = true
			return result, nil
		}
		s.logger.Warn("Discarding unreadable memo entry", "key", key)
	}

	raw, err := s.generate(ctx, s.explainer, memo.KindExplanation, prompt)
	if err != nil {
		return result, fmt.Errorf("generate explanation for %q: %w", item.Name, err)
	}

	record, err := s.extractor.Extract(util.StripThinkTags(raw))
	if err != nil {
		kind, _ := extract.KindOf(err)
		s.metrics.RecordExtraction(string(kind))
		s.logger.Warn("Model response could not be used",
			"item_id", item.ID,
			"item", item.Name,
			"kind", kind,
			"error", err,
			"raw", util.TruncateString(raw, rawLogLimit))
		return result, fmt.Errorf("explain %q: %w", item.Name, err)
	}
	s.metrics.RecordExtraction("ok")

	if record.Disclaimer == "" {
		record.Disclaimer = s.defaultDisclaimer
	}
	result.Explanation = record

	s.store(ctx, key, record)
	return result, nil
}

// Illustrate returns an illustration description for item, generating it on a memo miss
func (s *Service) Illustrate(ctx context.Context, item models.BillItem) (models.IllustrationResult, error) {
	result := models.IllustrationResult{Item: item}

	prompt, err := s.IllustrationPrompt(item)
	if err != nil {
		return result, err
	}

	key := memo.Key(memo.KindIllustration, item.ID, prompt)
	if data, ok := s.lookup(ctx, memo.KindIllustration, key); ok {
		var cached string
		if err := json.Unmarshal(data, &cached); err == nil {
			result.Description = cached
			result.Cached = true
			return result, nil
		}
		s.logger.Warn("Discarding unreadable memo entry", "key", key)
	}

	raw, err := s.generate(ctx, s.illustrator, memo.KindIllustration, prompt)
	if err != nil {
		return result, fmt.Errorf("generate illustration for %q: %w", item.Name, err)
	}

	description := util.CleanMetaFromLLMResponse(util.StripThinkTags(raw))
	if reason, unusable := unusableIllustration(description); unusable {
		s.logger.Warn("Illustration description rejected",
			"item_id", item.ID,
			"reason", reason,
			"raw", util.TruncateString(raw, rawLogLimit))
		return result, fmt.Errorf("illustrate %q: %w: %s", item.Name, ErrUnusableIllustration, reason)
	}
	result.Description = description

	s.store(ctx, key, description)
	return result, nil
}

func (s *Service) generate(ctx context.Context, gen llm.Generator, kind, prompt string) (string, error) {
	start := time.Now()
	raw, err := gen.Generate(ctx, prompt)
	s.metrics.RecordGeneration(gen.Name(), kind, time.Since(start), err == nil)
	if err != nil {
		s.logger.Warn("Generation failed", "model", gen.Name(), "kind", kind, "error", err)
	}
	return raw, err
}

// lookup treats memo errors as misses
func (s *Service) lookup(ctx context.Context, kind, key string) ([]byte, bool) {
	data, ok, err := s.memo.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Memo lookup failed", "key", key, "error", err)
		ok = false
	}
	s.metrics.RecordMemoLookup(kind, ok)
	return data, ok
}

func (s *Service) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to encode memo entry", "key", key, "error", err)
		return
	}
	if err := s.memo.Put(ctx, key, data); err != nil {
		s.logger.Warn("Memo store failed", "key", key, "error", err)
	}
}

func normalizeLanguage(lang models.Language) (models.Language, error) {
	parsed, ok := util.ParseLanguage(string(lang))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return parsed, nil
}
