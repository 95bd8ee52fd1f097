package telegram

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"resetbot/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %#v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %#v", got)
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	s := "abcdefg<b>x</b>"
	for _, chunk := range splitText(s, 9, "HTML") {
		if strings.Count(chunk, "<") != strings.Count(chunk, ">") {
			t.Fatalf("tag split across chunks: %q", chunk)
		}
	}
}

func TestClassifyEditError(t *testing.T) {
	cases := []struct {
		in       error
		wantNil  bool
		notFound bool
	}{
		{nil, true, false},
		{errors.New("telegram: Bad Request: message is not modified (400)"), true, false},
		{tele.ErrMessageNotModified, true, false},
		{tele.ErrSameMessageContent, true, false},
		{fmt.Errorf("edit board: %w", tele.ErrSameMessageContent), true, false},
		{tele.ErrCantEditMessage, false, true},
		{fmt.Errorf("edit board: %w", tele.ErrCantEditMessage), false, true},
		{tele.ErrChatNotFound, false, false},
		{errors.New("telegram: Bad Request: message to edit not found (400)"), false, true},
		{errors.New("telegram: Bad Request: MESSAGE_ID_INVALID (400)"), false, true},
		{errors.New("telegram: Too Many Requests (429)"), false, false},
	}
	for _, tc := range cases {
		got := classifyEditError(tc.in)
		if (got == nil) != tc.wantNil {
			t.Fatalf("%v: got %v", tc.in, got)
		}
		if errors.Is(got, transport.ErrMessageNotFound) != tc.notFound {
			t.Fatalf("%v: not-found = %v", tc.in, !tc.notFound)
		}
	}
}

func TestParseTarget(t *testing.T) {
	chat, thread, err := parseTarget(transport.ChatTarget{ChatID: "-1001234", ThreadID: "77"})
	if err != nil || chat.ID != -1001234 || thread != 77 {
		t.Fatalf("chat=%+v thread=%d err=%v", chat, thread, err)
	}
	if _, _, err := parseTarget(transport.ChatTarget{ChatID: "C0123"}); err == nil {
		t.Fatalf("expected error for non-numeric chat id")
	}
}
