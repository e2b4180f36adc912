package mqtt

import "errors"

var (
	ErrNotConnected = errors.New("not connected")
	ErrConnect      = errors.New("connect failed")
	ErrPublish      = errors.New("publish failed")
	ErrSubscribe    = errors.New("subscribe failed")
	ErrUnknownTopic = errors.New("unknown topic")
	ErrUnknownName  = errors.New("unknown name")
	ErrBadPayload   = errors.New("bad payload")
)
