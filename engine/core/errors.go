package core

import "github.com/cockroachdb/errors"

var ErrInvalidConfig = errors.New("invalid configuration")
