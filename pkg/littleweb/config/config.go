// Package config decodes the loosely-typed configuration blob an
// embedding application hands littleweb (parsed YAML/JSON/flags, a
// map[string]interface{}) into the strongly-typed server.Config the
// rest of the module expects (socket tuning is selected by profile name
// through its SocketProfile field), the way packetd's
// processor configs decode through mapstructure rather than requiring
// callers to construct nested option structs by hand.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/yourusername/littleweb/pkg/littleweb/server"
	"github.com/yourusername/littleweb/pkg/littleweb/socket"
)

// Raw is the wire shape of a decoded config document: durations and
// sizes as plain strings/numbers, tags matching what a YAML or JSON
// document would naturally produce.
type Raw struct {
	Addr                  string         `mapstructure:"addr"`
	MaxRequestWorkers     int            `mapstructure:"maxRequestWorkers"`
	QueueLimits           map[string]int `mapstructure:"queueLimits"`
	InitialRequestTimeout string         `mapstructure:"initialRequestTimeout"`
	KeepAliveMaxRequests  int32          `mapstructure:"keepAliveMaxRequests"`
	ThreadStopTimeout     string         `mapstructure:"threadStopTimeout"`
	HopPollInterval       string         `mapstructure:"hopPollInterval"`
	TempLocation          string         `mapstructure:"tempLocation"`
	ServerName            string         `mapstructure:"serverName"`
	SessionCookie         string         `mapstructure:"sessionCookie"`
	SessionTimeout        string         `mapstructure:"sessionTimeout"`
	SocketProfile         string         `mapstructure:"socketProfile"`
}

// Decode converts a raw config document (as produced by unmarshaling
// YAML/JSON/TOML into map[string]interface{}, or assembled directly by
// the embedding application) into a server.Config. Duration fields
// accept anything time.ParseDuration understands ("30s", "2m"); unset
// fields are left zero and picked up by Config.withDefaults at server
// construction time.
//
// SessionTimeout is returned separately since it configures
// session.NewManager rather than server.Config itself.
func Decode(raw map[string]interface{}) (cfg server.Config, sessionTimeout time.Duration, err error) {
	var doc Raw
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return server.Config{}, 0, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return server.Config{}, 0, fmt.Errorf("config: decoding document: %w", err)
	}

	cfg.Addr = doc.Addr
	cfg.TempLocation = doc.TempLocation
	cfg.ServerName = doc.ServerName
	cfg.SessionCookie = doc.SessionCookie
	cfg.KeepAliveMaxRequests = doc.KeepAliveMaxRequests
	cfg.SocketProfile = socket.Profile(doc.SocketProfile)

	if doc.MaxRequestWorkers > 0 || len(doc.QueueLimits) > 0 {
		limits := server.DefaultLimits(doc.MaxRequestWorkers)
		for name, max := range doc.QueueLimits {
			limits.MaxPerQueue[server.QueueName(name)] = max
		}
		cfg.Limits = limits
	}

	if cfg.InitialRequestTimeout, err = parseDuration(doc.InitialRequestTimeout); err != nil {
		return server.Config{}, 0, fmt.Errorf("config: initialRequestTimeout: %w", err)
	}
	if cfg.ThreadStopTimeout, err = parseDuration(doc.ThreadStopTimeout); err != nil {
		return server.Config{}, 0, fmt.Errorf("config: threadStopTimeout: %w", err)
	}
	if cfg.HopPollInterval, err = parseDuration(doc.HopPollInterval); err != nil {
		return server.Config{}, 0, fmt.Errorf("config: hopPollInterval: %w", err)
	}
	if sessionTimeout, err = parseDuration(doc.SessionTimeout); err != nil {
		return server.Config{}, 0, fmt.Errorf("config: sessionTimeout: %w", err)
	}

	return cfg, sessionTimeout, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
