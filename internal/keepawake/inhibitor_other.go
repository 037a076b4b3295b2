//go:build !linux && !darwin

package keepawake

import (
	"context"

	hostErrors "github.com/remotekeys/host/internal/errors"
)

// NewDefaultAdapter returns an adapter that always reports unsupported.
func NewDefaultAdapter() Adapter {
	return unsupportedAdapter{}
}

type unsupportedAdapter struct{}

func (unsupportedAdapter) Acquire(context.Context) (Handle, error) {
	return nil, hostErrors.New(hostErrors.CodeKeepAwakeUnsupported, "keep-awake is unsupported on this host")
}
