package fpsensor

import (
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/transport"
)

// Re-exported wire defaults (§6), for callers building a Config
// without importing the internal packages directly.
const (
	DefaultBaud    = transport.DefaultBaud
	DefaultAddress = protocol.DefaultAddress
	MaxParameters  = protocol.MaxParameters
)
