// Package generator produces new content templates from a topic through an
// LLM backend, and derives variants and revisions of existing ones.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/store"
)

var (
	ErrUnavailable    = errors.New("template generation backend not configured")
	ErrInvalidContent = errors.New("generated content failed validation")
)

const (
	DefaultMinLength = 2000
	DefaultTimeout   = 10 * time.Second
	salesMarker      = "Sales Blurb"
	variantMarker    = "*Variant for A/B Testing*"
	// cost estimate per 1K tokens, recorded for reporting only
	costPer1KTokens = 0.01
)

type Store interface {
	SaveTemplate(ctx context.Context, t *store.Template) error
	ListTemplates(ctx context.Context) ([]*store.Template, error)
	RecordMetric(ctx context.Context, m store.Metric) error
	Now() time.Time
}

type Options struct {
	// Dir, when set, receives a <id>.md copy of every saved template.
	Dir         string
	MinLength   int
	ProductType string
	// Timeout bounds each backend call. A call that runs past it fails like
	// any other backend error.
	Timeout     time.Duration
}

type Generator struct {
	store Store
	llm   Completer
	log   *logger.Logger
	opts  Options
}

// New returns a Generator. llm may be nil, in which case Generate and Revise
// return ErrUnavailable.
func New(s Store, llm Completer, log *logger.Logger, opts Options) *Generator {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.ProductType == "" {
		opts.ProductType = "digital"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Generator{store: s, llm: llm, log: logger.OrNop(log).With("component", "generator"), opts: opts}
}

func (g *Generator) Available() bool {
	return g.llm != nil
}

// ValidateContent checks the structure every template must have: a title
// line starting with '#', a sales blurb section and at least minLength
// characters.
func ValidateContent(content string, minLength int) error {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "#") {
		return fmt.Errorf("%w: missing title line", ErrInvalidContent)
	}
	if !strings.Contains(strings.ToLower(content), strings.ToLower(salesMarker)) {
		return fmt.Errorf("%w: missing sales blurb section", ErrInvalidContent)
	}
	if n := utf8.RuneCountInString(content); n < minLength {
		return fmt.Errorf("%w: %d characters, need %d", ErrInvalidContent, n, minLength)
	}
	return nil
}

// TemplateID derives "<safe_topic>_<YYYYMMDD_HHMMSS>".
func TemplateID(topic string, at time.Time) string {
	var b strings.Builder
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if runes := []rune(safe); len(runes) > 30 {
		safe = strings.TrimSpace(string(runes[:30]))
	}
	safe = strings.ReplaceAll(safe, " ", "_")
	if safe == "" {
		safe = "template"
	}
	return safe + "_" + at.Format("20060102_150405")
}

// Generate asks the backend for a template on topic, validates it and saves
// it with source "generated".
func (g *Generator) Generate(ctx context.Context, topic string) (*store.Template, error) {
	if g.llm == nil {
		return nil, ErrUnavailable
	}

	examples, err := g.examples(ctx)
	if err != nil {
		g.log.Warn("Failed to load example templates", "error", err)
	}

	out, err := g.complete(ctx, Prompt{
		System:      generateSystemPrompt,
		User:        buildGeneratePrompt(topic, g.opts.ProductType, g.opts.MinLength, examples),
		Temperature: 0.8,
		MaxTokens:   3000,
	})
	if err != nil {
		return nil, err
	}
	if err := ValidateContent(out.Text, g.opts.MinLength); err != nil {
		g.log.Warn("Generated template failed validation", "topic", topic, "error", err)
		return nil, err
	}

	t := &store.Template{
		ID:      TemplateID(topic, g.store.Now()),
		Topic:   topic,
		Content: out.Text,
		Source:  "generated",
	}
	if err := g.store.SaveTemplate(ctx, t); err != nil {
		return nil, err
	}
	if err := g.Export(t); err != nil {
		g.log.Warn("Failed to write template file", "template_id", t.ID, "error", err)
	}
	g.track(ctx, topic, out)

	g.log.Info("Generated template", "template_id", t.ID, "topic", topic, "length", len(t.Content))
	return t, nil
}

func (g *Generator) track(ctx context.Context, topic string, out Completion) {
	meta, _ := json.Marshal(map[string]any{
		"topic":          topic,
		"product_type":   g.opts.ProductType,
		"content_length": len(out.Text),
		"tokens_used":    out.Tokens,
		"model":          out.Model,
	})
	metrics := []store.Metric{{
		Type: "template_generation", Name: "templates_generated", Value: 1, Source: "ai_generated", Meta: string(meta),
	}}
	if out.Tokens > 0 {
		metrics = append(metrics, store.Metric{
			Type: "template_generation", Name: "generation_cost",
			Value: float64(out.Tokens) / 1000 * costPer1KTokens, Source: "openai", Meta: string(meta),
		})
	}
	for _, m := range metrics {
		if err := g.store.RecordMetric(ctx, m); err != nil {
			g.log.Warn("Failed to record generation metric", "metric", m.Name, "error", err)
		}
	}
}

// CreateVariant saves "<id>_variant", a copy of base with a marker under its
// sales blurb heading.
func (g *Generator) CreateVariant(ctx context.Context, base *store.Template) (*store.Template, error) {
	content := base.Content
	if strings.Contains(content, salesMarker) {
		content = strings.Replace(content, salesMarker, salesMarker+"\n\n"+variantMarker, 1)
	} else {
		content = strings.TrimRight(content, "\n") + "\n\n" + variantMarker + "\n"
	}

	v := &store.Template{
		ID:       base.ID + "_variant",
		Topic:    base.Topic,
		Content:  content,
		ParentID: base.ID,
		Source:   "variant",
	}
	if err := g.store.SaveTemplate(ctx, v); err != nil {
		return nil, err
	}
	if err := g.Export(v); err != nil {
		g.log.Warn("Failed to write template file", "template_id", v.ID, "error", err)
	}
	return v, nil
}

// Revise asks the backend to rewrite original following brief. The result is
// not saved; the caller persists it together with its audit record.
func (g *Generator) Revise(ctx context.Context, original *store.Template, brief string) (*store.Template, error) {
	if g.llm == nil {
		return nil, ErrUnavailable
	}
	out, err := g.complete(ctx, Prompt{
		System:      reviseSystemPrompt,
		User:        brief,
		Temperature: 0.7,
		MaxTokens:   3000,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Text) == "" {
		return nil, fmt.Errorf("%w: empty revision", ErrInvalidContent)
	}
	return &store.Template{
		ID:       original.ID + "_optimized_" + g.store.Now().Format("20060102"),
		Topic:    original.Topic,
		Content:  out.Text,
		ParentID: original.ID,
		Source:   "optimized",
	}, nil
}

func (g *Generator) complete(ctx context.Context, p Prompt) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	out, err := g.llm.Complete(ctx, p)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("generation backend timed out after %s: %w", g.opts.Timeout, err)
	}
	return out, err
}

// Export writes t to <Dir>/<id>.md. It is a no-op without a directory.
func (g *Generator) Export(t *store.Template) error {
	if g.opts.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(g.opts.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(g.opts.Dir, t.ID+".md"), []byte(t.Content), 0o644)
}
