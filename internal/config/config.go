// Package config loads the process-level configuration record for the ICE
// controller daemon: region, channel identity, AWS-style credentials, and
// the fleet limit the Controller enforces on concurrent peer sessions.
//
// Mirrors the teacher's internal/signaling.Config in shape (a flat,
// tagged struct loaded once at process start, no hot-reload) but is
// populated from the environment rather than a JSON file on disk, per the
// process entry point's "configuration ... supplied via a compile-time or
// environment-provided configuration record" contract.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the ICE controller daemon's process-level configuration.
type Config struct {
	// Region selects the default regional STUN server
	// (stun.kinesisvideo.<Region>.amazonaws.com[.cn]).
	Region string `json:"region"`

	// ChannelName identifies this process to the signaling rendezvous.
	ChannelName string `json:"channelName"`

	// AccessKeyID and SecretAccessKey are the credentials used to
	// authenticate against the signaling rendezvous service.
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`

	// CABundlePath, if set, overrides the system CA bundle used to
	// validate the signaling transport's TLS certificate.
	CABundlePath string `json:"caBundlePath"`

	// MaxConcurrentViewers bounds the controller's peer table; exceeding
	// it returns ice.ErrExceedRemotePeer rather than growing unbounded.
	MaxConcurrentViewers int `json:"maxConcurrentViewers"`
}

const (
	envRegion          = "ICECORE_REGION"
	envChannelName     = "ICECORE_CHANNEL_NAME"
	envAccessKeyID     = "ICECORE_ACCESS_KEY_ID"
	envSecretAccessKey = "ICECORE_SECRET_ACCESS_KEY"
	envCABundlePath    = "ICECORE_CA_BUNDLE_PATH"
	envMaxViewers      = "ICECORE_MAX_VIEWERS"

	defaultRegion      = "us-west-2"
	defaultMaxViewers  = 10
)

// FromEnvironment loads a Config from the process environment, applying
// the same defaults the daemon would use if unconfigured: region
// "us-west-2" and a fleet limit of 10 concurrent viewers.
func FromEnvironment() (Config, error) {
	cfg := Config{
		Region:               envOrDefault(envRegion, defaultRegion),
		ChannelName:          os.Getenv(envChannelName),
		AccessKeyID:          os.Getenv(envAccessKeyID),
		SecretAccessKey:      os.Getenv(envSecretAccessKey),
		CABundlePath:         os.Getenv(envCABundlePath),
		MaxConcurrentViewers: defaultMaxViewers,
	}

	if v := os.Getenv(envMaxViewers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s %q: %w", envMaxViewers, v, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("config: %s must be positive, got %d", envMaxViewers, n)
		}
		cfg.MaxConcurrentViewers = n
	}

	return cfg, nil
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
