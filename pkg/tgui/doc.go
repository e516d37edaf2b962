// Package tgui holds the small Telegram UI toolkit shared by the command
// handlers and the digest renderer: an HTML-safe message builder, inline
// keyboard and callback-data helpers, and a TTL token store for callback
// payloads that do not fit Telegram's 64-byte limit.
package tgui
