package attendance

import "errors"

var (
	ErrOpenRecord        = errors.New("attendance record has no clock-out")
	ErrMalformedInterval = errors.New("malformed attendance interval")
)
