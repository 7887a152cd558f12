package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	SupportedSchema = "v1"
	EnvPrefix       = "TORRENTSTORE__"
)

// XenServer carries the torrent tunables handed to the dom0 plugin and the
// SR selection used to find where images land.
type XenServer struct {
	TorrentBaseURL                   string  `koanf:"torrent_base_url"`
	TorrentSeedDuration              int     `koanf:"torrent_seed_duration"`     // seconds
	TorrentSeedChance                float64 `koanf:"torrent_seed_chance"`       // 0..1
	TorrentMaxLastAccessed           int     `koanf:"torrent_max_last_accessed"` // seconds
	TorrentListenPortStart           int     `koanf:"torrent_listen_port_start"`
	TorrentListenPortEnd             int     `koanf:"torrent_listen_port_end"`
	TorrentDownloadStallCutoff       int     `koanf:"torrent_download_stall_cutoff"`         // seconds
	TorrentMaxSeederProcessesPerHost int     `koanf:"torrent_max_seeder_processes_per_host"` // -1 = unlimited

	SRMatchingFilter string `koanf:"sr_matching_filter"`
	SRBasePath       string `koanf:"sr_base_path"`
}

type Session struct {
	Transport          string        `koanf:"transport"` // xenapi|grpc
	URL                string        `koanf:"url"`
	Username           string        `koanf:"username"`
	Password           string        `koanf:"password"`
	Timeout            time.Duration `koanf:"timeout"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	HostAgentAddr      string        `koanf:"host_agent_addr"`
}

type Relay struct {
	Listen string `koanf:"listen"`
}

type Notifications struct {
	Driver       string   `koanf:"driver"` // ""|stdout|kafka
	Brokers      []string `koanf:"brokers"`
	Topic        string   `koanf:"topic"`
	RequiredAcks int16    `koanf:"required_acks"`
}

type Telemetry struct {
	MetricsPort int `koanf:"metrics_port"` // 0 = disabled
}

type Log struct {
	Level     string `koanf:"level"`
	JSON      bool   `koanf:"json"`
	File      string `koanf:"file"`
	MaxSizeMB int    `koanf:"max_size_mb"` // rotation size for File
}

type Config struct {
	XenServer     XenServer     `koanf:"xenserver"`
	Session       Session       `koanf:"session"`
	Relay         Relay         `koanf:"relay"`
	Notifications Notifications `koanf:"notifications"`
	Telemetry     Telemetry     `koanf:"telemetry"`
	Log           Log           `koanf:"log"`
}

var defaults = map[string]any{
	"xenserver.torrent_seed_duration":                 3600,
	"xenserver.torrent_seed_chance":                   1.0,
	"xenserver.torrent_max_last_accessed":             86400,
	"xenserver.torrent_listen_port_start":             6881,
	"xenserver.torrent_listen_port_end":               6891,
	"xenserver.torrent_download_stall_cutoff":         600,
	"xenserver.torrent_max_seeder_processes_per_host": 1,
	"xenserver.sr_matching_filter":                    "default-sr:true",
	"xenserver.sr_base_path":                          "/var/run/sr-mount",
	"session.transport":                               "xenapi",
	"session.username":                                "root",
	"session.timeout":                                 "10m",
	"relay.listen":                                    "127.0.0.1:7070",
	"notifications.topic":                             "torrentstore.images",
	"notifications.required_acks":                     1,
	"log.level":                                       "info",
	"log.max_size_mb":                                 10,
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Load merges defaults, YAML (if present) and env-vars
// (prefix `TORRENTSTORE__`, delimiter `__`), in that order.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %s): %w",
			sv, SupportedSchema, errdefs.ErrInvalidArgument)
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TORRENTSTORE__XENSERVER__TORRENT_BASE_URL -> xenserver__torrent_base_url,
// which the provider splits on "__".
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

func (c Config) Validate() error {
	x := c.XenServer
	var errs []error
	if x.TorrentSeedChance < 0 || x.TorrentSeedChance > 1 {
		errs = append(errs, fmt.Errorf("torrent_seed_chance %v outside [0, 1]", x.TorrentSeedChance))
	}
	for name, p := range map[string]int{
		"torrent_listen_port_start": x.TorrentListenPortStart,
		"torrent_listen_port_end":   x.TorrentListenPortEnd,
	} {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("%s %d is not a valid port", name, p))
		}
	}
	if x.TorrentListenPortStart > x.TorrentListenPortEnd {
		errs = append(errs, fmt.Errorf("torrent_listen_port_start %d > torrent_listen_port_end %d",
			x.TorrentListenPortStart, x.TorrentListenPortEnd))
	}
	if x.TorrentSeedDuration < 0 || x.TorrentMaxLastAccessed < 0 || x.TorrentDownloadStallCutoff < 0 {
		errs = append(errs, errors.New("torrent durations must not be negative"))
	}
	if x.TorrentMaxSeederProcessesPerHost < -1 {
		errs = append(errs, fmt.Errorf("torrent_max_seeder_processes_per_host %d < -1", x.TorrentMaxSeederProcessesPerHost))
	}
	if c.Log.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("log max_size_mb %d < 0", c.Log.MaxSizeMB))
	}
	switch c.Session.Transport {
	case "xenapi", "grpc":
	default:
		errs = append(errs, fmt.Errorf("session transport %q not supported (want xenapi|grpc)", c.Session.Transport))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w: %w", errors.Join(errs...), errdefs.ErrInvalidArgument)
}
