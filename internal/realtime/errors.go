package realtime

import "errors"

var (
	ErrNoToken      = errors.New("no token to authenticate the realtime connection")
	ErrConnect      = errors.New("error connecting to realtime server")
	ErrDisconnected = errors.New("realtime channel disconnected while connecting")
)
