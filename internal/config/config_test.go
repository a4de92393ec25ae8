package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("BEDROCK_REGION", "")
	t.Setenv("BEDROCK_MODEL_ID", "")
	t.Setenv("BEDROCK_KB_ID", "ESPYQJ0ESV")
	t.Setenv("ASK_RATE_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.KnowledgeBase.Region != "us-east-1" {
		t.Fatalf("unexpected region %q", cfg.KnowledgeBase.Region)
	}
	want := "arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-v2:1"
	if got := cfg.KnowledgeBase.ModelARN(); got != want {
		t.Fatalf("unexpected model arn %q", got)
	}
	if cfg.Limits.AskRate != 0 || cfg.Limits.AskBurst != 1 {
		t.Fatalf("unexpected limits %+v", cfg.Limits)
	}
	if cfg.UI.Title != "RAG - Amazon Bedrock" {
		t.Fatalf("unexpected title %q", cfg.UI.Title)
	}
}

func TestLoadRegionOverride(t *testing.T) {
	t.Setenv("BEDROCK_KB_ID", "KB123")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("BEDROCK_REGION", "eu-central-1")
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	want := "arn:aws:bedrock:eu-central-1::foundation-model/anthropic.claude-3-haiku"
	if got := cfg.KnowledgeBase.ModelARN(); got != want {
		t.Fatalf("unexpected model arn %q", got)
	}
}

func TestLoadRequiresKnowledgeBaseID(t *testing.T) {
	t.Setenv("BEDROCK_KB_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when BEDROCK_KB_ID is missing")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("BEDROCK_KB_ID", "KB123")

	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for PORT with spaces")
	}
	t.Setenv("PORT", "")

	t.Setenv("ASK_RATE_LIMIT", "fast")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric ASK_RATE_LIMIT")
	}

	t.Setenv("ASK_RATE_LIMIT", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative ASK_RATE_LIMIT")
	}
}

func TestLoadServerAddrPassthrough(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	server, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig err: %v", err)
	}
	if server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", server.Addr)
	}
}
