package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders help in Telegram HTML parse mode: the top-level command
// list for an empty path, otherwise the detail view for one node.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok2 := alias[p]; ok2 && leaf != nil && leaf.cmd != nil {
				cur = leaf
				full = splitRoute(leaf.cmd.Route)
				break
			}
			return helpUnknownHTML()
		}
		cur = n
		full = append(full, p)
	}

	if len(path) == 0 {
		return helpTopHTML(root)
	}
	return helpNodeHTML(cur, full)
}

func helpUnknownHTML() string {
	return strings.Join([]string{
		"❓ <b>Unknown command</b>",
		"Type <code>/help</code> for the command list.",
	}, "\n")
}

type topRow struct {
	name string
	desc string
	lock bool
}

func helpTopHTML(root *cmdNode) string {
	names := root.childNames()
	rows := make([]topRow, 0, len(names))
	for _, name := range names {
		n, _ := root.child(name)
		if n == nil {
			continue
		}
		rows = append(rows, topRow{name: name, desc: summarizeNodeDesc(n), lock: nodeIsOwnerOnly(n)})
	}
	// Owner-only entries sink to the bottom, alphabetical within each group.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].lock != rows[j].lock {
			return !rows[i].lock
		}
		return rows[i].name < rows[j].name
	})

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	for _, r := range rows {
		prefix := "• "
		if r.lock {
			prefix = "• 🔒 "
		}
		suffix := ""
		if r.desc != "" {
			suffix = " - " + html.EscapeString(r.desc)
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(r.name)+"</code>"+suffix)
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func helpNodeHTML(cur *cmdNode, full []string) string {
	title := "/" + strings.Join(full, " ")
	lines := []string{"📚 <b>Help</b> <code>" + html.EscapeString(title) + "</code>"}

	if cur != nil && cur.cmd != nil {
		c := cur.cmd
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		if c.Access == AccessOwnerOnly {
			lines = append(lines, "🔒 <i>Owner only</i>")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
		if short := buildShortcuts(*c); len(short) > 0 {
			lines = append(lines, "", "<b>Shortcuts</b>")
			for _, s := range short {
				lines = append(lines, "• <code>/"+html.EscapeString(s)+"</code>")
			}
		}
	} else {
		lines = append(lines, "Command group; pick a subcommand.")
		if nodeIsOwnerOnly(cur) {
			lines = append(lines, "🔒 <i>Owner only</i>")
		}
	}

	if cur != nil && len(cur.children) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			if n == nil {
				continue
			}
			path := append(append([]string(nil), full...), name)
			prefix := "• "
			if nodeIsOwnerOnly(n) {
				prefix = "• 🔒 "
			}
			suffix := ""
			if d := summarizeNodeDesc(n); d != "" {
				suffix = " - " + html.EscapeString(d)
			}
			lines = append(lines, prefix+"<code>/"+html.EscapeString(strings.Join(path, " "))+"</code>"+suffix)
		}
	}

	return strings.Join(filterEmpty(lines), "\n")
}

func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	max := 3
	if len(kids) < max {
		max = len(kids)
	}
	s := strings.Join(kids[:max], ", ")
	if len(kids) > max {
		s += ", …"
	}
	return "subcommands: " + s
}

// nodeIsOwnerOnly reports whether a node, or every command under it, is
// owner-only. Used to mark groups with a lock in help and the menu.
func nodeIsOwnerOnly(n *cmdNode) bool {
	if n == nil {
		return false
	}
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	ownerOnly := true
	var walk func(x *cmdNode)
	walk = func(x *cmdNode) {
		if x == nil || !ownerOnly {
			return
		}
		if x.cmd != nil && x.cmd.Access == AccessEveryone {
			ownerOnly = false
			return
		}
		for _, ch := range x.children {
			walk(ch)
			if !ownerOnly {
				return
			}
		}
	}
	walk(n)
	return ownerOnly
}

func buildShortcuts(c Command) []string {
	out := make([]string, 0, 4)
	seen := map[string]bool{}

	route := splitRoute(c.Route)
	if menu, ok := telegramCommandNameFromRoute(route); ok {
		// The canonical single-token name is not a shortcut.
		if len(route) > 1 || menu != route[0] {
			out = append(out, menu)
			seen[menu] = true
		}
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") || seen[a] {
			continue
		}
		out = append(out, a)
		seen[a] = true
		if sa := sanitizeTelegramCommand(a); sa != "" && !seen[sa] {
			out = append(out, sa)
			seen[sa] = true
		}
	}

	sort.Strings(out)
	return out
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	prevEmpty := true
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			if prevEmpty {
				continue
			}
			out = append(out, "")
			prevEmpty = true
			continue
		}
		out = append(out, s)
		prevEmpty = false
	}
	return out
}
