package xps

import "github.com/ehrlich-b/go-xps/internal/constants"

// Re-export constants for public API
const (
	MaxEpollEvents        = constants.MaxEpollEvents
	DefaultBufferSize     = constants.DefaultBufferSize
	DefaultPipeBuffThresh = constants.DefaultPipeBuffThresh
	DefaultNullsThresh    = constants.DefaultNullsThresh
	DefaultBacklog        = constants.DefaultBacklog
)
