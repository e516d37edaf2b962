package tgui

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Data formats callback data as "scope:action:payload". The payload travels
// verbatim; structured values should go through PackJSON, or the token store
// when the result would exceed MaxCallbackDataLen.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}

// PackJSON marshals v and Base64URL-encodes it (no padding) for the payload
// part of callback data.
func PackJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// UnpackJSON reverses PackJSON into v.
func UnpackJSON(payload string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
