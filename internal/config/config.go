// Package config loads the flat key=value configuration file external
// to the core (§6.3), using the teacher's own dependency for the
// low-level file format.
package config

import (
	"strconv"
	"time"

	horghconfig "github.com/horgh/config"
	"github.com/pkg/errors"
)

// Config holds a server's configuration (§6.3). Queue length options are
// the core's four backpressure knobs; the remaining fields are the
// ambient pieces (listeners, welcome-template text, operator
// credentials, debug endpoint) the core treats as injected input.
type Config struct {
	ServerName  string
	Network     string
	Version     string
	CreatedDate string
	MOTD        string

	InsecureListenAddress  string
	SecureListenAddress    string
	DebugHTTPListenAddress string

	ChannelMessageQueueLength    int
	ConnectionMessageQueueLength int
	UserMessageQueueLength       int
	ServerMessageQueueLength     int

	PingTime time.Duration
	DeadTime time.Duration

	// Oper name to password.
	Opers map[string]string
}

var requiredKeys = []string{
	"server-name",
	"network-name",
	"version",
	"created-date",
	"motd",
	"insecure-listen-address",
	"channel-message-queue-length",
	"connection-message-queue-length",
	"user-message-queue-length",
	"server-message-queue-length",
	"ping-time",
	"dead-time",
}

// Load reads and validates the configuration file at path. Optional
// keys (secure-listen-address, debug-http-listen-address,
// opers-config) may be absent; everything in requiredKeys must be
// present and non-blank.
func Load(path string) (*Config, error) {
	raw, err := horghconfig.ReadStringMap(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	for _, key := range requiredKeys {
		v, exists := raw[key]
		if !exists {
			return nil, errors.Errorf("missing required key: %s", key)
		}
		if len(v) == 0 {
			return nil, errors.Errorf("configuration value is blank: %s", key)
		}
	}

	cfg := &Config{
		ServerName:             raw["server-name"],
		Network:                raw["network-name"],
		Version:                raw["version"],
		CreatedDate:            raw["created-date"],
		MOTD:                   raw["motd"],
		InsecureListenAddress:  raw["insecure-listen-address"],
		SecureListenAddress:    raw["secure-listen-address"],
		DebugHTTPListenAddress: raw["debug-http-listen-address"],
	}

	cfg.ChannelMessageQueueLength, err = parseInt(raw["channel-message-queue-length"])
	if err != nil {
		return nil, errors.Wrap(err, "channel-message-queue-length")
	}
	cfg.ConnectionMessageQueueLength, err = parseInt(raw["connection-message-queue-length"])
	if err != nil {
		return nil, errors.Wrap(err, "connection-message-queue-length")
	}
	cfg.UserMessageQueueLength, err = parseInt(raw["user-message-queue-length"])
	if err != nil {
		return nil, errors.Wrap(err, "user-message-queue-length")
	}
	cfg.ServerMessageQueueLength, err = parseInt(raw["server-message-queue-length"])
	if err != nil {
		return nil, errors.Wrap(err, "server-message-queue-length")
	}

	cfg.PingTime, err = time.ParseDuration(raw["ping-time"])
	if err != nil {
		return nil, errors.Wrap(err, "ping-time is in invalid format")
	}
	cfg.DeadTime, err = time.ParseDuration(raw["dead-time"])
	if err != nil {
		return nil, errors.Wrap(err, "dead-time is in invalid format")
	}

	if opersFile, ok := raw["opers-config"]; ok && opersFile != "" {
		opers, err := horghconfig.ReadStringMap(opersFile)
		if err != nil {
			return nil, errors.Wrap(err, "unable to load opers config")
		}
		cfg.Opers = opers
	} else {
		cfg.Opers = map[string]string{}
	}

	return cfg, nil
}

// Default returns a configuration usable for tests and for the "just
// run it" path: 6667 plaintext, no TLS, modest queue depths (§6.3).
func Default() *Config {
	return &Config{
		ServerName:                   "irc.example.org",
		Network:                      "Test",
		Version:                      "1.0",
		CreatedDate:                  time.Now().UTC().Format(time.RFC3339),
		MOTD:                         "Welcome.",
		InsecureListenAddress:        ":6667",
		SecureListenAddress:          "",
		DebugHTTPListenAddress:       "",
		ChannelMessageQueueLength:    50,
		ConnectionMessageQueueLength: 50,
		UserMessageQueueLength:       50,
		ServerMessageQueueLength:     50,
		PingTime:                     2 * time.Minute,
		DeadTime:                     4 * time.Minute,
		Opers:                        map[string]string{},
	}
}

func parseInt(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
