package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_DETECTOR_TIMEOUT", "750ms")
	defer os.Unsetenv("TEST_DETECTOR_TIMEOUT")

	path := filepath.Join(t.TempDir(), "gate.yaml")
	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: 9999
gate:
  detector_timeout: ${TEST_DETECTOR_TIMEOUT}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Gate.DetectorTimeout != 750*time.Millisecond {
		t.Errorf("expected detector timeout 750ms, got %s", cfg.Gate.DetectorTimeout)
	}
	// Untouched sections keep their defaults.
	if len(cfg.Classifier.Stages) != 2 {
		t.Errorf("expected 2 default cascade stages, got %d", len(cfg.Classifier.Stages))
	}
}

func TestLoadFile_Missing(t *testing.T) {
	var cfg Config
	if err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"gate.yaml": `
filter:
  politics:
    enabled: false
`,
		"routes.yaml": `
routes:
  reject: {model_id: chat-model, prompt_id: reject, tool_set: []}
  normal: {model_id: chat-model, prompt_id: main, tool_set: [search_web]}
  deep:   {model_id: research-model, prompt_id: deep_research, tool_set: [search_web, fetch_page]}
  simple: {model_id: chat-model-mini, prompt_id: simple, tool_set: []}
`,
		"models.yaml": `
models:
  guard-model:
    primary: {provider: openai, model: gpt-4o-mini}
`,
		"providers.yaml": `
providers:
  openai:
    type: openai
    base_url: https://api.openai.com/v1
    api_key: ${GATE_TEST_UNSET_OPENAI_KEY:test}
    timeout: 5s
`,
		"prompts.yaml": `
prompts:
  guard_prompt_injection:
    system: "Answer yes or no."
    max_tokens: 4
`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoader_Load(t *testing.T) {
	dir := writeConfigDir(t)
	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if l.Config().Filter.Politics.Enabled {
		t.Error("expected politics filter disabled by gate.yaml")
	}
	if !l.Config().Filter.Injection.Enabled {
		t.Error("expected injection filter enabled by default")
	}

	deep, ok := l.Routes().Routes["deep"]
	if !ok {
		t.Fatal("expected deep route")
	}
	if deep.ModelID != "research-model" || len(deep.ToolSet) != 2 || deep.ToolSet[1] != types.ToolID("fetch_page") {
		t.Errorf("unexpected deep route: %+v", deep)
	}
	if l.Models().Models["guard-model"].Primary.Provider != "openai" {
		t.Error("expected guard-model primary provider openai")
	}
	if l.Providers().Providers["openai"].APIKey != "test" {
		t.Errorf("expected api key default 'test', got %q", l.Providers().Providers["openai"].APIKey)
	}
	if l.Prompts().Prompts["guard_prompt_injection"].MaxTokens != 4 {
		t.Error("expected prompt max_tokens 4")
	}
}

func TestLoader_Load_MissingFile(t *testing.T) {
	dir := writeConfigDir(t)
	os.Remove(filepath.Join(dir, "routes.yaml"))

	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err == nil {
		t.Fatal("expected error when routes.yaml is missing")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "bot", User: "u", Password: "p"}
	want := "postgres://u:p@db:5433/bot?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoader_ShippedConfigs(t *testing.T) {
	l := NewLoader("../../configs", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(l.Routes().Routes) != 4 {
		t.Errorf("expected 4 routes, got %d", len(l.Routes().Routes))
	}
	for _, stage := range l.Config().Classifier.Stages {
		if _, ok := l.Prompts().Prompts[stage.PromptID]; !ok {
			t.Errorf("stage %s references unknown prompt %s", stage.Name, stage.PromptID)
		}
		if _, ok := l.Models().Models[stage.ModelID]; !ok {
			t.Errorf("stage %s references unknown model %s", stage.Name, stage.ModelID)
		}
	}
	for _, id := range []string{l.Config().Filter.Injection.PromptID, l.Config().Filter.Politics.PromptID} {
		if _, ok := l.Prompts().Prompts[id]; !ok {
			t.Errorf("detector references unknown prompt %s", id)
		}
	}
	for name, m := range l.Models().Models {
		for _, route := range append([]ProviderRoute{m.Primary}, m.Fallback...) {
			if _, ok := l.Providers().Providers[route.Provider]; !ok {
				t.Errorf("model %s references unknown provider %s", name, route.Provider)
			}
		}
	}
}

func TestLoader_WatchReloadsOnce(t *testing.T) {
	dir := writeConfigDir(t)
	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	reloaded := make(chan struct{}, 4)
	l.OnReload(func() { reloaded <- struct{}{} })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer l.Close()

	gate := []byte("filter:\n  politics:\n    enabled: true\n")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, "gate.yaml"), gate, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload after the file changed")
	}
	if !l.Config().Filter.Politics.Enabled {
		t.Error("expected the reloaded value to be visible")
	}

	select {
	case <-reloaded:
		t.Error("expected the burst of writes to produce a single reload")
	case <-time.After(2 * reloadDebounce):
	}
}

func TestLoader_BrokenReloadKeepsPrevious(t *testing.T) {
	dir := writeConfigDir(t)
	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	called := false
	l.OnReload(func() { called = true })

	if err := os.WriteFile(filepath.Join(dir, "routes.yaml"), []byte("routes: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	l.reload()

	if called {
		t.Error("callbacks must not run after a failed reload")
	}
	if _, ok := l.Routes().Routes["deep"]; !ok {
		t.Error("expected the previous routes to stay in place")
	}
}
