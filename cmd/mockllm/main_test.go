package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "version"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRootCmdFlags(t *testing.T) {
	cmd := buildRootCmd()
	for _, name := range []string{"config-dir", "listen", "watch", "debug"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected persistent flag %q to be registered", name)
		}
	}
	if got := cmd.PersistentFlags().Lookup("config-dir").DefValue; got != "./config" {
		t.Fatalf("expected config-dir default ./config, got %q", got)
	}
}
