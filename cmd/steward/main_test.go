package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "migrate", "status", "config"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := resolveConfigPath("explicit.yaml"); got != "explicit.yaml" {
		t.Fatalf("expected explicit path to win, got %q", got)
	}

	t.Setenv("STEWARD_CONFIG", "/etc/steward/steward.yaml")
	if got := resolveConfigPath(""); got != "/etc/steward/steward.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}

	t.Setenv("STEWARD_CONFIG", "")
	if got := resolveConfigPath(""); got != defaultConfigName {
		t.Fatalf("expected default path, got %q", got)
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	cmd := buildConfigSchemaCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("schema command failed: %v", err)
	}
	if !strings.Contains(out.String(), "jwt_secret") {
		t.Fatalf("expected schema output to describe config fields, got: %s", out.String())
	}
}
