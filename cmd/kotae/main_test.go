package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/server"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"how do I deploy", "-server", "http://x"},
			expected: []string{"-server", "http://x", "how do I deploy"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-server", "http://x", "how do I deploy"},
			expected: []string{"-server", "http://x", "how do I deploy"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"how do I deploy"},
			expected: []string{"how do I deploy"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"deploy"}, "deploy"},
		{"multiple words", []string{"how", "do", "I", "deploy?"}, "how do I deploy?"},
		{"quoted phrase", []string{"how do I deploy?"}, "how do I deploy?"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "kotae.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

// fakeCompletions serves an OpenAI-style SSE stream and sends each request body it receives on requests.
func fakeCompletions(t *testing.T, requests chan<- string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		requests <- string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{"The sky ", "is blue."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", frag)
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(t *testing.T, chatURL string) *config.Config {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"sky.mdx":    "# Sky\n\nThe sky is blue.\n\n",
		"banana.mdx": "# Bananas\n\nBananas are yellow.\n\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("KOTAE_TEST_CHAT_KEY", "sk-test")
	cfg := &config.Config{
		Corpus:    config.CorpusConfig{Root: root},
		Embedding: config.EmbeddingConfig{Provider: "hash", Dimensions: 256},
		Chat:      config.ChatConfig{BaseURL: chatURL, APIKeyEnv: "KOTAE_TEST_CHAT_KEY"},
		Vector:    config.VectorConfig{Backend: "memory"},
		Storage:   config.StorageConfig{LedgerPath: filepath.Join(t.TempDir(), "ledger.db")},
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestInitializeComponents_IndexWithoutChat(t *testing.T) {
	cfg := testConfig(t, "")
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Streamer != nil || c.Pipeline != nil {
		t.Error("chat components created for indexing")
	}
	run, err := c.Rebuilder.Rebuild(ctx, indexer.TriggerCLI)
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Index.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.Documents != 2 || run.Indexed != 2 || n != run.Indexed {
		t.Errorf("run = %+v, count = %d", run, n)
	}
}

func TestInitializeComponents_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Vector.Backend = "faiss"
	if _, err := initializeComponents(context.Background(), cfg, zap.NewNop(), false); err == nil {
		t.Fatal("expected error for unknown vector backend")
	}
}

func TestServerEndToEnd(t *testing.T) {
	requests := make(chan string, 1)
	completions := fakeCompletions(t, requests)
	cfg := testConfig(t, completions.URL)
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, zap.NewNop(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Rebuilder.Rebuild(ctx, indexer.TriggerStartup); err != nil {
		t.Fatal(err)
	}

	srv := server.NewServer(c.Pipeline, c.Rebuilder, c.Store, c.Index, &cfg.Server, zap.NewNop(),
		server.WithLedger(c.Ledger), server.WithGatherer(c.Registry))
	defer srv.Stop(ctx)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json", strings.NewReader(`{"content":"What color is the sky?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "The sky is blue." {
		t.Errorf("answer = %q", body)
	}
	request := <-requests
	if !strings.Contains(request, "The sky is blue.") || strings.Contains(request, "Bananas") {
		t.Errorf("completion request not grounded on the sky document: %s", request)
	}
	if !strings.Contains(request, "What color is the sky?") {
		t.Errorf("completion request missing the question: %s", request)
	}

	metrics, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metrics.Body.Close()
	exposition, _ := io.ReadAll(metrics.Body)
	if !strings.Contains(string(exposition), `kotae_queries_total{outcome="answered"} 1`) {
		t.Errorf("metrics missing answered query:\n%s", exposition)
	}
}
