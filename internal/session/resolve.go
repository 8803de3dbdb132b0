package session

import "github.com/chet-im/chet/internal/config"

// DefaultSessionName is used when neither the flag nor the config
// names a session.
const DefaultSessionName = "main"

// Resolve picks the active session name: the command-line override
// wins, then the config's default_session, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
