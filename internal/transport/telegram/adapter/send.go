package adapter

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "planbot/internal/transport"
)

// telegramTextLimit stays under the hard 4096-char API cap so HTML entities
// added near a boundary don't push a chunk over.
const telegramTextLimit = 4000

func sendOpts(opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opt == nil {
		return so
	}
	switch strings.ToLower(opt.ParseMode) {
	case "html":
		so.ParseMode = tele.ModeHTML
	case "markdown", "md":
		so.ParseMode = tele.ModeMarkdown
	case "markdownv2", "mdv2":
		so.ParseMode = tele.ModeMarkdownV2
	}
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok && rm != nil {
		so.ReplyMarkup = rm
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if a.bot == nil {
		return kit.MessageRef{}, errors.New("adapter not initialized")
	}
	chunks := splitTelegramText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := a.limiter.Wait(ctx); err != nil {
			return first, err
		}
		so := sendOpts(opt)
		so.ThreadID = to.ThreadID
		// Markup belongs on the first chunk only; repeating it on
		// continuation chunks duplicates keyboards in the chat.
		if i > 0 {
			so.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(tele.ChatID(to.ChatID), chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if a.bot == nil {
		return errors.New("adapter not initialized")
	}
	chunks := splitTelegramText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	editable := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(editable, chunks[0], sendOpts(opt)); err != nil {
		return err
	}
	// Overflow past the first chunk cannot be edited in; send as follow-ups.
	for _, chunk := range chunks[1:] {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		so := sendOpts(opt)
		so.ThreadID = ref.ThreadID
		so.ReplyMarkup = nil
		if _, err := a.bot.Send(tele.ChatID(ref.ChatID), chunk, so); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if a.bot == nil {
		return errors.New("adapter not initialized")
	}
	_ = ctx
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// splitTelegramText splits text into chunks of at most limit runes, preferring
// newline boundaries so lists and code blocks stay readable, and refusing to
// cut inside an HTML tag.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		// Prefer the last newline in the window, but only if the resulting
		// chunk keeps a reasonable size.
		if nl := lastIndexRune(runes[:limit], '\n'); nl >= limit/3 {
			cut = nl + 1
		} else {
			// Never cut inside an HTML tag like <b> or </code>.
			for cut > limit/2 && insideTag(runes[:cut]) {
				cut--
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// insideTag reports whether rs ends in the middle of an HTML tag, i.e. a '<'
// appears after the last '>'.
func insideTag(rs []rune) bool {
	for i := len(rs) - 1; i >= 0; i-- {
		switch rs[i] {
		case '>':
			return false
		case '<':
			return true
		}
	}
	return false
}
