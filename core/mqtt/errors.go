package mqtt

import "errors"

// ErrPublishFailed is returned once every publish attempt has failed.
var ErrPublishFailed = errors.New("mqtt publish failed")

// ErrBadTopic is returned when a topic does not follow the hero layout.
var ErrBadTopic = errors.New("mqtt topic does not match hero layout")
