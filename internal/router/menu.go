package router

import (
	"sort"
	"strings"

	"resetbot/internal/transport"
)

// sanitizeCommand maps a route or alias to a menu-safe name: [a-z0-9_]{1,32},
// starting with a letter.
func sanitizeCommand(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// menuName joins a multi-token route with underscores.
func menuName(route []string) (string, bool) {
	out := sanitizeCommand(strings.Join(route, "_"))
	return out, out != ""
}

// buildMenu lists top-level commands first, then shortcuts for nested routes.
func buildMenu(root *cmdNode, cmds []Command) []transport.BotCommand {
	type entry struct {
		name, desc string
		prio       int
	}
	seen := map[string]entry{}
	add := func(name, desc string, prio int) {
		name = sanitizeCommand(name)
		if name == "" {
			return
		}
		desc = strings.ReplaceAll(strings.TrimSpace(desc), "\n", " ")
		if desc == "" {
			desc = name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		if cur, ok := seen[name]; ok && cur.prio <= prio {
			return
		}
		seen[name] = entry{name: name, desc: desc, prio: prio}
	}

	for _, name := range root.childNames() {
		n, _ := root.child(name)
		desc := describe(n)
		if n.ownerOnly() {
			desc = "🔒 " + desc
		}
		add(name, desc, 0)
	}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) < 2 {
			continue
		}
		if name, ok := menuName(route); ok {
			add(name, c.Description, 1)
		}
	}

	entries := make([]entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].prio != entries[j].prio {
			return entries[i].prio < entries[j].prio
		}
		return entries[i].name < entries[j].name
	})
	out := make([]transport.BotCommand, 0, len(entries))
	for _, e := range entries {
		if len(out) == 100 {
			break
		}
		out = append(out, transport.BotCommand{Command: e.name, Description: e.desc})
	}
	return out
}
