package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gkobilansky/cashloop/internal/config"
)

func TestApplyAnswers(t *testing.T) {
	cfg, err := applyAnswers(config.Defaults(), wizardAnswers{
		DBPath:               "/var/lib/cashloop.db",
		OpenAIAPIKey:         "sk-test",
		EnableGeneration:     true,
		TargetMonthlyRevenue: " 2500.5 ",
		Topics:               "budgeting, , meal prep ,",
		RedisAddr:            "localhost:6379",
	})
	if err != nil {
		t.Fatalf("applyAnswers failed: %v", err)
	}

	if cfg.DBPath != "/var/lib/cashloop.db" {
		t.Errorf("expected db path to be set, got %s", cfg.DBPath)
	}
	if !cfg.TemplateGenerationEnabled {
		t.Error("expected generation to be enabled")
	}
	if cfg.TargetMonthlyRevenue != 2500.5 {
		t.Errorf("expected target 2500.5, got %g", cfg.TargetMonthlyRevenue)
	}
	if strings.Join(cfg.TemplateTopics, "|") != "budgeting|meal prep" {
		t.Errorf("unexpected topics %v", cfg.TemplateTopics)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr, got %s", cfg.RedisAddr)
	}
}

func TestApplyAnswers_GenerationNeedsKey(t *testing.T) {
	cfg, err := applyAnswers(config.Defaults(), wizardAnswers{EnableGeneration: true})
	if err != nil {
		t.Fatalf("applyAnswers failed: %v", err)
	}
	if cfg.TemplateGenerationEnabled {
		t.Error("generation must stay off without an API key")
	}
	if len(cfg.TemplateTopics) != len(config.Defaults().TemplateTopics) {
		t.Error("empty topics answer should keep the defaults")
	}
}

func TestApplyAnswers_BadRevenue(t *testing.T) {
	if _, err := applyAnswers(config.Defaults(), wizardAnswers{TargetMonthlyRevenue: "lots"}); err == nil {
		t.Error("expected error for non-numeric revenue")
	}
	if _, err := applyAnswers(config.Defaults(), wizardAnswers{TargetMonthlyRevenue: "-5"}); err == nil {
		t.Error("expected error for negative revenue")
	}
}

func TestRunInit_DefaultsWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	oldPath, oldDefaults, oldForce := configPath, initDefaults, initForce
	t.Cleanup(func() { configPath, initDefaults, initForce = oldPath, oldDefaults, oldForce })
	configPath = filepath.Join(dir, "cashloop.yaml")
	initDefaults = true
	initForce = false

	var out bytes.Buffer
	initCmd.SetOut(&out)
	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	if !strings.Contains(out.String(), "cashloop serve --config") {
		t.Errorf("missing next steps, got:\n%s", out.String())
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	if cfg.ABTestMinConversions != config.Defaults().ABTestMinConversions {
		t.Errorf("expected default min conversions, got %d", cfg.ABTestMinConversions)
	}

	if err := runInit(initCmd, nil); err == nil {
		t.Error("expected error when config exists without --force")
	}
	initForce = true
	if err := runInit(initCmd, nil); err != nil {
		t.Errorf("expected overwrite with --force, got %v", err)
	}
}
