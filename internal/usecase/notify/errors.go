package notify

import "errors"

// Sentinel errors returned by channel Send implementations.
var (
	// ErrChannelDisabled reports Send called on a channel that is switched
	// off in configuration.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidAnnouncement reports a nil announcement.
	ErrInvalidAnnouncement = errors.New("invalid announcement")
)
