package client

import "errors"

var (
	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrNotConnected is returned when the client has no open pool.
	ErrNotConnected = errors.New("client: not connected")

	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("client: unsupported provider")

	// ErrServerTooOld is returned when the server is older than the supported minimum.
	ErrServerTooOld = errors.New("client: database server version not supported")
)
