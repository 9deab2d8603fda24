package dbpool

import (
	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
)

// validate checks cfg for the errors that can only be raised at Start:
// missing connectivity, and nonsensical pool/cache bounds.
func (c *Config) validate() error {
	if c.Opener == nil {
		return &poolerrors.ConfigError{Field: "Opener"}
	}
	if c.PoolMaxSize <= 0 {
		return &poolerrors.ConfigError{Field: "PoolMaxSize"}
	}
	if c.PoolInitialSize < 0 || c.PoolInitialSize > c.PoolMaxSize {
		return &poolerrors.ConfigError{Field: "PoolInitialSize"}
	}
	if c.StatementCacheMaxSize < 0 {
		return &poolerrors.ConfigError{Field: "StatementCacheMaxSize"}
	}
	if c.ReducerSamples < 0 {
		return &poolerrors.ConfigError{Field: "ReducerSamples"}
	}
	if c.ReducerFraction < 0 || c.ReducerFraction > 1 {
		return &poolerrors.ConfigError{Field: "ReducerFraction"}
	}
	return nil
}
