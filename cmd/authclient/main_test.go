package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
)

func TestNewRootCommandHelp(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
	for _, subcommand := range []string{"token", "connect", "logout"} {
		if !bytes.Contains(output.Bytes(), []byte(subcommand)) {
			t.Fatalf("expected %q in help output", subcommand)
		}
	}
}

func TestBuildResolverUsesConfiguredPaths(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("server_url", "http://localhost:8080")
	viper.Set("keyring_service", "jarvis-test")
	viper.Set("keyring_account", "credentials")
	viper.Set("credential_file", t.TempDir()+"/record.json")

	store, tokenResolver, cleanup, buildErr := buildResolver()
	if buildErr != nil {
		t.Fatalf("unexpected build error: %v", buildErr)
	}
	defer cleanup()

	if store == nil || tokenResolver == nil {
		t.Fatalf("expected store and resolver constructed")
	}
}
