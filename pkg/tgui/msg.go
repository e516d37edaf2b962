package tgui

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "planbot/internal/transport"
)

// Message is a rendered payload: text plus send options, built once and then
// sent or edited without repeating ParseMode/markup boilerplate.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send delivers the message via the adapter.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Edit replaces the message referred to by ref.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder accumulates lines for one HTML message. Plain-text inputs are
// escaped; use RawLine for content that is already H.
type Builder struct {
	rm    *tele.ReplyMarkup
	lines []string
}

func New() *Builder { return &Builder{} }

// Inline attaches an inline keyboard.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Title adds a bold first line, with an optional emoji prefix.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := B(t).String()
	if e := strings.TrimSpace(emoji); e != "" {
		line = Esc(e).String() + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

// Section adds a bold header line.
func (b *Builder) Section(title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	b.lines = append(b.lines, B(t).String())
	return b
}

// Line adds one escaped line. An empty string becomes a blank line.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// RawLine appends a line without escaping.
func (b *Builder) RawLine(s H) *Builder {
	b.lines = append(b.lines, s.String())
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// Bullets adds one bullet line per non-empty item.
func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		b.Line("• " + it)
	}
	return b
}

// KV adds a "• key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

// Code adds an inline <code> line.
func (b *Builder) Code(s string) *Builder {
	s = strings.TrimSpace(s)
	if s == "" {
		return b
	}
	b.lines = append(b.lines, Code(s).String())
	return b
}

// Pre adds a preformatted block line.
func (b *Builder) Pre(code string) *Builder {
	code = strings.TrimRight(code, "\n")
	if code == "" {
		return b
	}
	b.lines = append(b.lines, Pre(code).String())
	return b
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: text, Opt: opt}
}
