package engine

import "errors"

var (
	ErrAlreadyRunning    = errors.New("engine already running")
	ErrNotRunning        = errors.New("engine not running")
	ErrEngineStopped     = errors.New("engine stopped")
	ErrCharacterInFlight = errors.New("character in flight")
	ErrNoDeparture       = errors.New("character has no departure lease")
)
