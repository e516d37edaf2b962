package router

import (
	"sort"
	"strings"
	"unicode"

	kit "planbot/internal/transport"
	"planbot/pkg/tgui"
)

// sanitizeTelegramCommand converts a route or alias into a Telegram-safe bot
// command name. Telegram restricts command names to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if r == '_' {
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		if r == '-' || r == '/' || unicode.IsSpace(r) {
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		// Anything else is dropped.
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	// Telegram clients expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

// telegramCommandNameFromRoute flattens a route into one menu command:
// ["digest","now"] -> "digest_now".
func telegramCommandNameFromRoute(route []string) (string, bool) {
	if len(route) == 0 {
		return "", false
	}
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	if out == "" {
		return "", false
	}
	return out, true
}

// buildTelegramMenuCommands flattens the command tree into the /menu
// autocomplete list: top-level entries first, then multi-token leaves as
// underscore shortcuts. Telegram caps the list at 100 commands and each
// description at 256 characters.
func buildTelegramMenuCommands(root *cmdNode, leafCmds []Command) []kit.BotCommand {
	type entry struct {
		cmd  string
		desc string
		prio int
	}
	byCmd := map[string]entry{}
	add := func(cmd string, desc string, prio int) {
		cmd = sanitizeTelegramCommand(cmd)
		if cmd == "" {
			return
		}
		desc = strings.TrimSpace(strings.ReplaceAll(desc, "\n", " "))
		if desc == "" {
			desc = cmd
		}
		desc = tgui.TruncRunes(desc, 255)

		if cur, ok := byCmd[cmd]; ok {
			// Keep the better priority; on ties prefer the shorter description.
			if prio < cur.prio || (prio == cur.prio && len(desc) < len(cur.desc)) {
				byCmd[cmd] = entry{cmd: cmd, desc: desc, prio: prio}
			}
			return
		}
		byCmd[cmd] = entry{cmd: cmd, desc: desc, prio: prio}
	}

	if root != nil {
		for _, name := range root.childNames() {
			n, _ := root.child(name)
			if n == nil {
				continue
			}
			desc := summarizeNodeDesc(n)
			if nodeIsOwnerOnly(n) {
				desc = "🔒 " + desc
			}
			add(name, desc, 0)
		}
	}

	for _, c := range leafCmds {
		route := splitRoute(c.Route)
		// Single-token routes are already covered by the top-level pass.
		if len(route) < 2 {
			continue
		}
		menu, ok := telegramCommandNameFromRoute(route)
		if !ok {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = strings.Join(route, " ")
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		add(menu, desc, 1)
	}

	entries := make([]entry, 0, len(byCmd))
	for _, e := range byCmd {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].prio != entries[j].prio {
			return entries[i].prio < entries[j].prio
		}
		return entries[i].cmd < entries[j].cmd
	})

	out := make([]kit.BotCommand, 0, len(entries))
	for _, e := range entries {
		out = append(out, kit.BotCommand{Command: e.cmd, Description: e.desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
