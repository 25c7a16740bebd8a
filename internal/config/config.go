// Package config loads the daemon's single ini-style configuration file
// (§6): group [Daemon], keys IdleExitTimeout and AutomaticUpdatePolicy.
// Grounded on the ipiton-alert-history-service teacher's use of
// spf13/viper for its own config loader.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ostreedev/rpmostreed-core/internal/ostreelog"
)

// UpdatePolicy is the daemon's automatic-update depth (§3 ActiveUpdatePolicy).
type UpdatePolicy string

const (
	PolicyNone  UpdatePolicy = "none"
	PolicyCheck UpdatePolicy = "check"
	PolicyStage UpdatePolicy = "stage"
)

func (p UpdatePolicy) Valid() bool {
	switch p {
	case PolicyNone, PolicyCheck, PolicyStage:
		return true
	default:
		return false
	}
}

const (
	DefaultIdleExitTimeout = 60 * time.Second
	DefaultUpdatePolicy    = PolicyNone
)

// Config is the daemon's fully-resolved configuration.
type Config struct {
	IdleExitTimeout        time.Duration
	AutomaticUpdatePolicy  UpdatePolicy
	DisableIdleExitForTest bool // wired from RPMOSTREE_DEBUG_DISABLE_DAEMON_IDLE_EXIT
}

// Load reads path (if it exists), applying defaults for anything absent or
// unparseable. It reads no environment variables. An absent file is not an
// error (§6); an unparseable value is logged and the default substituted.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("ini")
	v.SetDefault("daemon.idleexittimeout", uint64(DefaultIdleExitTimeout.Seconds()))
	v.SetDefault("daemon.automaticupdatepolicy", string(DefaultUpdatePolicy))

	if path != "" {
		// SetConfigFile points viper at an explicit path rather than a search
		// path, so a missing file surfaces as a plain *fs.PathError from
		// ReadInConfig, never viper.ConfigFileNotFoundError (that sentinel is
		// only produced by viper's own search-path resolution). Check
		// existence ourselves so "absent file is not an error" (§6) holds for
		// this fixed-path daemon too.
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("statting config %s: %w", path, err)
		}
	}

	cfg := &Config{
		IdleExitTimeout:       parseIdleExitTimeout(v),
		AutomaticUpdatePolicy: parseUpdatePolicy(v),
	}
	return cfg, nil
}

func parseIdleExitTimeout(v *viper.Viper) time.Duration {
	raw := v.GetUint64("daemon.idleexittimeout")
	if raw == 0 && v.GetString("daemon.idleexittimeout") != "0" {
		// GetUint64 silently returns 0 on a non-numeric value; tell the two
		// cases apart so an unparseable value is logged rather than
		// mistaken for an explicit "disable idle exit".
		s := v.GetString("daemon.idleexittimeout")
		if s != "" && s != "0" {
			ostreelog.Logger.Warn().Str("value", s).Msg("invalid IdleExitTimeout, using default")
			return DefaultIdleExitTimeout
		}
	}
	return time.Duration(raw) * time.Second
}

func parseUpdatePolicy(v *viper.Viper) UpdatePolicy {
	raw := strings.ToLower(strings.TrimSpace(v.GetString("daemon.automaticupdatepolicy")))
	policy := UpdatePolicy(raw)
	if !policy.Valid() {
		if raw != "" {
			ostreelog.Logger.Warn().Str("value", raw).Msg("invalid AutomaticUpdatePolicy, using default")
		}
		return DefaultUpdatePolicy
	}
	return policy
}
