package store

import (
	"github.com/xtxerr/relayhist/internal/errors"
)

var (
	ErrNotFound     = errors.ErrNotFound
	ErrStoreFailure = errors.ErrStoreFailure
	ErrStoreClosed  = errors.ErrStoreClosed
)
