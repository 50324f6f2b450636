// Package cfgload loads the client's JSON configuration file, styled on
// the teacher's cmn/jsp.LoadMeta: a thin wrapper that turns a missing or
// malformed file into one readable error rather than a raw decoder panic.
package cfgload

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/klynmesh/overlay-client/internal/cos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the client's full runtime configuration (spec.md §6
// "Configuration"), expanded with the ambient fields a deployable process
// needs beyond the bare discovery_interval the distilled spec names.
type Config struct {
	// NodeID is this client's identity on the overlay.
	NodeID uint8 `json:"node_id"`
	// DiscoveryInterval is how often the client re-floods absent any
	// AddSender/RemoveSender trigger. Zero means engine.DefaultDiscoveryInterval.
	DiscoveryInterval Duration `json:"discovery_interval"`
	// SessionTTL bounds how long a pending-sent/pending-received session
	// may sit unacknowledged before the reaper discards it (spec.md §9
	// Open Question 3 — supplemented, not in the original source).
	SessionTTL Duration `json:"session_ttl"`
	// MetricsAddr is the bind address for the prometheus /metrics
	// endpoint; empty disables it.
	MetricsAddr string `json:"metrics_addr"`
	// LogVerbosity sets internal/nlog's minimum severity (0=info, 1=warn, 2=error).
	LogVerbosity int `json:"log_verbosity"`
}

// Duration wraps time.Duration with JSON (de)serialization from a
// human-readable string ("20s"), the same ergonomic the teacher's own
// cmn.Duration type provides for hand-edited config files.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return cos.Wrap(err, "invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and decodes the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cos.Wrap(err, "failed to read config %q", path)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, cos.Wrap(err, "failed to parse config %q", path)
	}
	return cfg, nil
}
