package httpapi

import "github.com/rs/zerolog"

// Options configure the control-plane router.
type Options struct {
	// AppSecret enables AppAPI request authentication when non-empty.
	AppSecret string
	// AppID, when set, must match the EX-APP-ID header of authenticated requests.
	AppID string

	// CORS is opt-in. If disabled, no CORS middleware is added.
	CORSEnabled bool
	CORSOrigins []string

	// HistoryLimit caps GET /history. Zero means defaultHistoryLimit.
	HistoryLimit int

	Logger zerolog.Logger
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)
