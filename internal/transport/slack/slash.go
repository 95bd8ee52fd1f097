package slack

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

const maxSlashBody = 64 << 10

// SlashHandler verifies and accepts slash command requests. The command is
// queued for the router and answered asynchronously in the channel.
func (a *Adapter) SlashHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSlashBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		verifier, err := slack.NewSecretsVerifier(r.Header, a.cfg.SigningSecret)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, err := verifier.Write(body); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := verifier.Ensure(); err != nil {
			a.log.Warn("slash command signature rejected", logx.Err(err))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		s, err := slack.SlashCommandParse(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !a.forward(a.toMessage(s)) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, "Busy, try again in a moment.")
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// toMessage turns a slash command into the command line the router expects.
func (a *Adapter) toMessage(s slack.SlashCommand) *transport.Message {
	cmd := strings.ToLower(strings.TrimSpace(s.Command))
	text := strings.TrimSpace(s.Text)
	line := cmd
	if strings.EqualFold(cmd, a.cfg.Umbrella) {
		line = "/" + strings.TrimPrefix(text, "/")
		if text == "" {
			line = "/help"
		}
	} else if text != "" {
		line += " " + text
	}
	return &transport.Message{
		Transport:    Name,
		ChatID:       s.ChannelID,
		FromID:       s.UserID,
		FromUsername: s.UserName,
		Text:         line,
		IsGroup:      true,
	}
}
