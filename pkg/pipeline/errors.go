package pipeline

import "github.com/cockroachdb/errors"

var (
	// ErrDecode marks failures to read or decode an input image
	ErrDecode = errors.New("decode failed")

	// ErrEncode marks failures to encode or write the output panorama
	ErrEncode = errors.New("encode failed")

	// ErrInvalidRequest marks requests rejected before any work is done
	ErrInvalidRequest = errors.New("invalid request")
)
