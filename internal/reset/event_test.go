package reset

import (
	"encoding/json"
	"testing"
)

func TestStateNormalizeAndFind(t *testing.T) {
	raw := `{"daily":[{"name":"Ursus","emoji":"🐻","slots":["14:00","21:00"]}],
	          "weekly":[{"name":"Boss","time":"20:00","day":"thursday","timestamp":1704416400,"emoji":""}]}`
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	st.Normalize()

	if st.Daily[0].Frequency != Daily || st.Weekly[0].Frequency != Weekly {
		t.Fatalf("frequencies not stamped: %+v", st)
	}
	if st.Daily[0].ID != "daily:ursus" || st.Weekly[0].ID != "weekly:boss" {
		t.Fatalf("derived ids = %q, %q", st.Daily[0].ID, st.Weekly[0].ID)
	}
	for _, e := range append(st.Daily, st.Weekly...) {
		if err := e.Validate(); err != nil {
			t.Fatalf("validate %s: %v", e.Name, err)
		}
	}

	freq, idx, ok := st.Find("  URSUS ")
	if !ok || freq != Daily || idx != 0 {
		t.Fatalf("find ursus = %v %d %v", freq, idx, ok)
	}
	if _, _, ok := st.Find("nope"); ok {
		t.Fatalf("found missing event")
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	st := State{Daily: []Event{{Name: "a", Slots: []string{"14:00"}}}}
	st.Normalize()
	cp := st.Clone()
	cp.Daily[0].Name = "b"
	cp.Daily[0].Slots[0] = "15:00"
	if st.Daily[0].Name != "a" || st.Daily[0].Slots[0] != "14:00" {
		t.Fatalf("clone shares memory with source: %+v", st.Daily[0])
	}
}

func TestEventValidate(t *testing.T) {
	bad := []Event{
		{Name: " ", Frequency: Daily},
		{Name: "x", Frequency: Daily, Slots: []string{"25:00"}},
		{Name: "x", Frequency: Weekly, Time: "20:00", Day: "someday", Timestamp: 1},
		{Name: "x", Frequency: Weekly, Time: "20:00", Day: "monday"},
	}
	for i, e := range bad {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, e)
		}
	}
}

func TestSanitizeEmoji(t *testing.T) {
	cases := map[string]string{
		"":                           "",
		"  ":                         "",
		"<a:Mushroom:1385184240643>": "<a:Mushroom:1385184240643>",
		"<:boss:42>":                 "<:boss:42>",
		":fire:":                     ":fire:",
		"🔥":                          "🔥",
		"\xff\xfe":                   "",
	}
	for in, want := range cases {
		if got := SanitizeEmoji(in); got != want {
			t.Fatalf("SanitizeEmoji(%q) = %q, want %q", in, got, want)
		}
	}
}
