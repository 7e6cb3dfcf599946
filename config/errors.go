package config

import "go.trai.ch/zerr"

var (
	// ErrConfigRead is returned when the config file exists but cannot be read.
	ErrConfigRead = zerr.New("failed to read config file")

	// ErrConfigDecode is returned when the config file cannot be decoded.
	ErrConfigDecode = zerr.New("failed to decode config file")

	// ErrUnknownGroup is returned when a name does not refer to a configured group.
	ErrUnknownGroup = zerr.New("unknown group")

	// ErrInvalidGroup is returned when a group definition is structurally invalid.
	ErrInvalidGroup = zerr.New("invalid group definition")

	// ErrInvalidStep is returned when a step definition is structurally invalid.
	ErrInvalidStep = zerr.New("invalid step definition")
)
