package cli

import (
	"strings"
	"testing"
)

// Test command initialization and registration
func TestCommandsRegistered(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}

	expected := map[string]bool{
		"submit":  false,
		"results": false,
	}

	for _, cmd := range rootCmd.Commands() {
		for key := range expected {
			if strings.HasPrefix(cmd.Use, key) {
				expected[key] = true
			}
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("expected command %q to be registered with root command", name)
		}
	}
}

func TestSubmitCommandFlags(t *testing.T) {
	if submitCmd.Flags().Lookup("email") == nil {
		t.Error("submit command should have an --email flag")
	}
	if submitCmd.Flags().Lookup("cohort") == nil {
		t.Error("submit command should have a --cohort flag")
	}
}

func TestResultsCommandFlags(t *testing.T) {
	if resultsCmd.Flags().Lookup("ttl") == nil {
		t.Error("results command should have a --ttl flag")
	}
}
