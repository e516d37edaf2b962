package tgui

import "html"

// H is HTML that is safe to hand to Telegram with ParseMode="HTML".
// Treat values as already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML. Use sparingly.
func Raw(s string) H { return H(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Pre renders a preformatted block. Telegram needs balanced tags per message,
// so keep Pre content well under the message size limit.
func Pre(s string) H {
	return H("<pre><code>" + html.EscapeString(s) + "</code></pre>")
}
