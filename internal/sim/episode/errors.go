package episode

import "errors"

var (
	// ErrInvalidConfig indicates the environment configuration was rejected.
	ErrInvalidConfig = errors.New("invalid environment config")
	// ErrEpisodeNotActive indicates Step was called before Reset or after the
	// episode terminated or was truncated.
	ErrEpisodeNotActive = errors.New("episode is not active")
	// ErrInvalidAction indicates an action vector of the wrong length.
	ErrInvalidAction = errors.New("invalid action")
)
