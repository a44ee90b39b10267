package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port           int
	MediaBase      string
	Channels       []string
	Parallel       int
	IntervalSec    int
	RetentionHours int
	QueryHours     int
	StateDir       string
	BaseURL        string
	CuosEndpoint   string
	NatsURL        string
	NatsToken      string
	VoskCommand    string
	VoskModel      string
	LogLevel       string
}

func Load() Config {
	return Config{
		Port:           envInt("VOSK_PORT", 8000),
		MediaBase:      envStr("MEDIA_BASE", "/srv/media"),
		Channels:       envList("CHANNELS", nil),
		Parallel:       envInt("PARALLEL", 4),
		IntervalSec:    envInt("INTERVAL_SEC", 300),
		RetentionHours: envInt("RETENTION_HOURS", 48),
		QueryHours:     envInt("QUERY_HOURS", 48),
		StateDir:       envStr("STATE_DIR", "."),
		BaseURL:        envStr("BASE_URL", ""),
		CuosEndpoint:   envStr("CUOS_ENDPOINT", ""),
		NatsURL:        envStr("NATS_URL", ""),
		NatsToken:      envStr("NATS_TOKEN", ""),
		VoskCommand:    envStr("VOSK_COMMAND", "vosk-helper"),
		VoskModel:      envStr("VOSK_MODEL", "vosk-model-es-0.42"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
	}
}

// ChannelsFile is the optional JSON roster, kept compatible with the
// channels.json layout the processing scripts have always used:
//
//	{"media_base": "/srv/media", "channels": ["Canal13", "mega"], "parallel": 4}
type ChannelsFile struct {
	MediaBase string   `json:"media_base"`
	Channels  []string `json:"channels"`
	Parallel  int      `json:"parallel"`
}

// MergeChannelsFile overlays the roster file onto cfg. A missing file is not
// an error; a present but invalid one is.
func (c *Config) MergeChannelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read channels file: %w", err)
	}
	var cf ChannelsFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parse channels file %s: %w", path, err)
	}
	if len(cf.Channels) == 0 {
		return fmt.Errorf("channels file %s: 'channels' must be a non-empty list", path)
	}
	c.Channels = cf.Channels
	if cf.MediaBase != "" {
		c.MediaBase = cf.MediaBase
	}
	if cf.Parallel > 0 {
		c.Parallel = cf.Parallel
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
