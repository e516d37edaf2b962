package tgui

import "errors"

// MaxCallbackDataLen is Telegram's limit on the full callback_data string,
// "scope:action:payload" included, in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
