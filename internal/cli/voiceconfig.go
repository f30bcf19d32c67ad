package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultVoiceInstructions = "You are a helpful meeting assistant. Answer in one or two short, conversational sentences."

// VoiceConfig drives the voice command. File values are read first and the
// environment overrides them.
type VoiceConfig struct {
	ServerURL    string  `toml:"server_url"`
	APIKey       string  `toml:"api_key"`
	Instructions string  `toml:"instructions"`
	AzureKey     string  `toml:"azure_speech_key"`
	AzureRegion  string  `toml:"azure_speech_region"`
	AzureVoice   string  `toml:"azure_voice"`
	CartesiaKey  string  `toml:"cartesia_api_key"`
	Language     string  `toml:"language"`
	MaxTokens    int     `toml:"max_tokens"`
	Temperature  float64 `toml:"temperature"`
}

// LoadVoiceConfig reads path, or voiceConfigPath() when path is empty. An
// explicit path must exist; the default one is optional.
func LoadVoiceConfig(path string) (VoiceConfig, error) {
	cfg := VoiceConfig{
		ServerURL:    "http://localhost:8080",
		Instructions: defaultVoiceInstructions,
		Language:     "en",
	}

	explicit := path != ""
	if !explicit {
		path = voiceConfigPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !os.IsNotExist(err) {
				return VoiceConfig{}, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	applyVoiceEnv(&cfg)

	if strings.TrimSpace(cfg.ServerURL) == "" {
		return VoiceConfig{}, fmt.Errorf("server_url must be set")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return VoiceConfig{}, fmt.Errorf("temperature must be within [0, 2]")
	}
	return cfg, nil
}

func applyVoiceEnv(cfg *VoiceConfig) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"MEETAI_SERVER_URL", &cfg.ServerURL},
		{"MEETAI_VOICE_AGENT_API_KEY", &cfg.APIKey},
		{"AZURE_SPEECH_KEY", &cfg.AzureKey},
		{"AZURE_SPEECH_REGION", &cfg.AzureRegion},
		{"AZURE_SPEECH_VOICE", &cfg.AzureVoice},
		{"CARTESIA_API_KEY", &cfg.CartesiaKey},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
}

func voiceConfigPath() string {
	var dir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = filepath.Join(xdg, "meetai")
	} else if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "meetai")
	} else {
		return ""
	}
	return filepath.Join(dir, "voice.toml")
}
