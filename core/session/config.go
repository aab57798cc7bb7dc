package session

import "time"

// Config controls session lifetime behavior.
type Config struct {
	// TTL is the fixed session lifetime measured from creation. The same
	// duration applies to admin and regular sessions.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"2160h"`

	// TouchInterval throttles last-active writes: a resolve within this
	// interval of the previous touch skips the store update. The throttle
	// trades last-active precision for one less write per request; set to
	// zero to touch on every access.
	TouchInterval time.Duration `env:"SESSION_TOUCH_INTERVAL" envDefault:"5m"`

	// CleanupInterval is how often expired records are swept when the
	// backing store has no native TTL support.
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
}
