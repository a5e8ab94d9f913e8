package hyperliquid

import "errors"

// ErrFeatureUnavailable is a sentinel for a Hyperliquid action that this wire
// implementation does not encode; no Client method in this package returns it.
var ErrFeatureUnavailable = errors.New("hyperliquid: feature unavailable")
