package slack

import (
	"regexp"
	"strings"
)

var (
	reLink = regexp.MustCompile(`<a href="([^"]+)">([^<]*)</a>`)
	reTag  = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

	tagReplacer = strings.NewReplacer(
		"<b>", "*", "</b>", "*",
		"<strong>", "*", "</strong>", "*",
		"<i>", "_", "</i>", "_",
		"<em>", "_", "</em>", "_",
		"<s>", "~", "</s>", "~",
		"<code>", "`", "</code>", "`",
		"<pre>", "```", "</pre>", "```",
		"<u>", "", "</u>", "",
	)

	// Slack keeps &amp; &lt; &gt; escaped; the rest is plain text.
	entityReplacer = strings.NewReplacer("&quot;", `"`, "&#34;", `"`, "&#39;", "'")

	mentionReplacer = strings.NewReplacer("@here", "<!here>", "@channel", "<!channel>", "@everyone", "<!everyone>")
)

// toMrkdwn converts the HTML subset produced by internal/render into Slack
// mrkdwn.
func toMrkdwn(s string) string {
	s = reLink.ReplaceAllString(s, "<$1|$2>")
	s = tagReplacer.Replace(s)
	s = reTag.ReplaceAllStringFunc(s, func(tag string) string {
		// Links converted above look like <https://...|text>.
		if strings.Contains(tag, "|") || strings.HasPrefix(tag, "<http") {
			return tag
		}
		return ""
	})
	s = entityReplacer.Replace(s)
	return mentionReplacer.Replace(s)
}
