package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if DefaultWebRoot == "" {
		t.Error("DefaultWebRoot should be initialized")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_CONFIG", "")
	if got, want := GetConfigPath(), filepath.Join(DefaultConfigDir, ConfigFileName); got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}

	t.Setenv(ConfigEnvPrefix+"_CONFIG", "/tmp/custom.hcl")
	if got := GetConfigPath(); got != "/tmp/custom.hcl" {
		t.Errorf("GetConfigPath() = %q, want env override", got)
	}
}

func TestGetStatePath(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")
	if got, want := GetStatePath(), filepath.Join(DefaultStateDir, StateFileName); got != want {
		t.Errorf("GetStatePath() = %q, want %q", got, want)
	}

	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "/var/lib/tg")
	if got := GetStatePath(); got != "/var/lib/tg/"+StateFileName {
		t.Errorf("GetStatePath() = %q, want env override", got)
	}
}
