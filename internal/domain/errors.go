package domain

import "errors"

var (
	ErrInvalidPersonality    = errors.New("invalid personality")
	ErrPersonalityNotFound   = errors.New("personality not found")
	ErrBuiltinImmutable      = errors.New("built-in personalities cannot be modified")
	ErrNoPersonalitySelected = errors.New("no personality selected")
	ErrEmptyMessage          = errors.New("message is empty")
	ErrNotAnImage            = errors.New("file is not an image")
	ErrImageTooLarge         = errors.New("image is too large")
	ErrProactiveDisabled     = errors.New("proactive messaging is disabled")
	ErrUnknownSchema         = errors.New("unknown stored schema version")
)
