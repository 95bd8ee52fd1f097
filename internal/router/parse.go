package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var reqSeq atomic.Uint64

// newReqID returns a short id: base36 millis + sequence.
func newReqID() string {
	n := reqSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(n, 36)
}

// tokenizeCommandLine splits a command line on whitespace. Single or double
// quotes group words and a backslash escapes the next byte:
//
//	/adddaily "Monster Park" 🎢 --slots 14:00,21:00
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out    []string
		cur    strings.Builder
		quote  byte
		escape bool
		quoted bool // an empty "" still yields a token
	)
	flush := func() {
		if cur.Len() > 0 || quoted {
			out = append(out, cur.String())
		}
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escape:
			cur.WriteByte(ch)
			escape = false
		case ch == '\\':
			escape = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			quote = ch
			quoted = true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return out
}

// parseFlags separates positionals from flags.
//
//	--k=v, --k v   value flag
//	--flag         bool flag (when followed by nothing or another flag)
//	-k v, -k=v     short value flag
//
// A lone "-" or "--" is positional; everything after "--" is positional.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' || isNumber(a) {
			pos = append(pos, a)
			continue
		}
		key := strings.TrimLeft(a, "-")
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[strings.ToLower(k)] = v
			continue
		}
		key = strings.ToLower(key)
		if i+1 < len(args) && !looksLikeFlag(args[i+1]) {
			flags[key] = args[i+1]
			i++
			continue
		}
		bools[key] = true
	}
	return pos, flags, bools
}

func looksLikeFlag(s string) bool {
	return len(s) > 1 && s[0] == '-' && !isNumber(s)
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
