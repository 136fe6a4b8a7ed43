// Package brand provides centralized branding constants.
//
// The brand identity is loaded from brand.json at compile time via go:embed.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	Repository       string `json:"repository"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultWebRoot   string `json:"defaultWebRoot"`
	ConfigFileName   string `json:"configFileName"`
	StateFileName    string `json:"stateFileName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultWebRoot = b.DefaultWebRoot
	ConfigFileName = b.ConfigFileName
	StateFileName = b.StateFileName
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultWebRoot   string
	ConfigFileName   string
	StateFileName    string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// GetConfigPath returns the config file path, checking env vars first.
// Priority: TUNNELGATE_CONFIG > DefaultConfigDir/ConfigFileName
func GetConfigPath() string {
	if p := os.Getenv(ConfigEnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir, ConfigFileName)
}

// GetStatePath returns the state database path.
// Priority: TUNNELGATE_STATE_DIR/StateFileName > DefaultStateDir/StateFileName
func GetStatePath() string {
	dir := DefaultStateDir
	if d := os.Getenv(ConfigEnvPrefix + "_STATE_DIR"); d != "" {
		dir = d
	}
	return filepath.Join(dir, StateFileName)
}
