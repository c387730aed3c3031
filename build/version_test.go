package build

import (
	"testing"
)

// verify version is set from BuildVersionArray, not hardcoded placeholder
func TestBuildVersionNotZero(t *testing.T) {
	if BuildVersion == "0.0.0" {
		t.Fatal("BuildVersion should not be 0.0.0")
	}
	if BuildVersion == "" {
		t.Fatal("BuildVersion should not be empty")
	}
}

func TestUserVersion(t *testing.T) {
	t.Setenv("POREP_VERSION_IGNORE_COMMIT", "1")
	if UserVersion() != BuildVersion {
		t.Fatalf("expected %s, got %s", BuildVersion, UserVersion())
	}

	t.Setenv("POREP_VERSION_IGNORE_COMMIT", "")
	if UserVersion() != BuildVersion+"+"+BuildType+CurrentCommit {
		t.Fatalf("unexpected version %s", UserVersion())
	}
}
