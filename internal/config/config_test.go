package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Qdrant.Collection != "documents" {
		t.Errorf("Qdrant.Collection = %q, want %q", cfg.Qdrant.Collection, "documents")
	}
	if cfg.Retrieval.CandidateLimit != 30 {
		t.Errorf("Retrieval.CandidateLimit = %d, want 30", cfg.Retrieval.CandidateLimit)
	}
	if cfg.Retrieval.RRFConstant != 60 {
		t.Errorf("Retrieval.RRFConstant = %d, want 60", cfg.Retrieval.RRFConstant)
	}
	if cfg.Ingest.ChunkSize != 512 {
		t.Errorf("Ingest.ChunkSize = %d, want 512", cfg.Ingest.ChunkSize)
	}
	if cfg.Bus.Type != "memory" {
		t.Errorf("Bus.Type = %q, want %q", cfg.Bus.Type, "memory")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
port: 9090
qdrant:
  collection: custom_docs
retrieval:
  candidate_limit: 50
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Qdrant.Collection != "custom_docs" {
		t.Errorf("Qdrant.Collection = %q, want %q", cfg.Qdrant.Collection, "custom_docs")
	}
	if cfg.Retrieval.CandidateLimit != 50 {
		t.Errorf("Retrieval.CandidateLimit = %d, want 50", cfg.Retrieval.CandidateLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	// Unset fields keep defaults.
	if cfg.Inference.EmbedDim != 1536 {
		t.Errorf("Inference.EmbedDim = %d, want default 1536", cfg.Inference.EmbedDim)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RAG_PORT", "3000")
	t.Setenv("QDRANT_COLLECTION", "env_docs")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.Qdrant.Collection != "env_docs" {
		t.Errorf("Qdrant.Collection = %q, want %q", cfg.Qdrant.Collection, "env_docs")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: "port must be between",
		},
		{
			name:    "empty collection",
			mutate:  func(c *Config) { c.Qdrant.Collection = "" },
			wantErr: "collection must not be empty",
		},
		{
			name:    "zero candidate limit",
			mutate:  func(c *Config) { c.Retrieval.CandidateLimit = 0 },
			wantErr: "candidate_limit must be positive",
		},
		{
			name:    "bad bus type",
			mutate:  func(c *Config) { c.Bus.Type = "rabbitmq" },
			wantErr: "invalid bus type",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "invalid log level",
		},
		{
			name:    "overlap exceeds chunk size",
			mutate:  func(c *Config) { c.Ingest.ChunkOverlap = 600 },
			wantErr: "chunk_overlap must be less than chunk_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 8080}
	if got := cfg.Address(); got != "127.0.0.1:8080" {
		t.Errorf("Address() = %q, want %q", got, "127.0.0.1:8080")
	}
}
