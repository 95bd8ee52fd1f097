package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"resetbot/internal/reset"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

func sampleState() reset.State {
	st := reset.State{
		Daily: []reset.Event{
			{ID: "d1", Name: "Ursus", Emoji: "🐻", Slots: []string{"14:00", "21:00"}},
			{ID: "d2", Name: "Monster Park", Emoji: ""},
		},
		Weekly: []reset.Event{
			{ID: "w2", Name: "Zakum", Time: "20:00", Day: "thursday", Timestamp: 1704416400},
			{ID: "w1", Name: "Boss Crystals", Emoji: ":gem:", Time: "19:00", Day: "sunday", Timestamp: 1704585600},
		},
	}
	st.Normalize()
	return st
}

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resets.json")
	if driver == "sqlite" {
		path = filepath.Join(t.TempDir(), "resets.db")
	}
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreDrivers(t *testing.T) {
	for _, driver := range []string{"file", "sqlite", "badger"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openDriver(t, driver)

			empty, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("load empty: %v", err)
			}
			if empty.Len() != 0 || empty.Daily == nil || empty.Weekly == nil {
				t.Fatalf("empty store loaded %+v", empty)
			}

			want := sampleState()
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}

			// Save replaces, never merges.
			want.Weekly = want.Weekly[:1]
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("second save: %v", err)
			}
			got, _ = st.Load(ctx)
			if len(got.Weekly) != 1 || got.Weekly[0].Name != "Zakum" {
				t.Fatalf("weekly after replace = %+v", got.Weekly)
			}

			if _, ok, err := st.BoardRef(ctx, BoardDaily); err != nil || ok {
				t.Fatalf("board ref before set: ok=%v err=%v", ok, err)
			}
			ref := transport.MessageRef{ChatID: "-100", ThreadID: "5", MessageID: "77"}
			if err := st.SetBoardRef(ctx, BoardDaily, ref); err != nil {
				t.Fatalf("set board: %v", err)
			}
			ref.MessageID = "78"
			if err := st.SetBoardRef(ctx, BoardDaily, ref); err != nil {
				t.Fatalf("update board: %v", err)
			}
			gotRef, ok, err := st.BoardRef(ctx, BoardDaily)
			if err != nil || !ok || gotRef != ref {
				t.Fatalf("board ref = %+v ok=%v err=%v", gotRef, ok, err)
			}
			if _, ok, _ := st.BoardRef(ctx, BoardWeekly); ok {
				t.Fatalf("weekly board unexpectedly set")
			}

			if err := st.AppendAudit(ctx, AuditEntry{At: time.Now(), ActorID: "42", Action: "add", Target: "Ursus", OK: true}); err != nil {
				t.Fatalf("audit: %v", err)
			}
		})
	}
}

func TestFileStoreAuditAndLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resets.json")
	legacy := `{"daily":[{"name":"Ursus","emoji":""}],"weekly":[{"name":"Zakum","time":"20:00","day":"thursday","timestamp":1704416400,"emoji":""}]}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load legacy: %v", err)
	}
	if got.Daily[0].ID != "daily:ursus" || got.Weekly[0].Frequency != reset.Weekly {
		t.Fatalf("legacy records not normalized: %+v", got)
	}

	_ = st.AppendAudit(ctx, AuditEntry{ActorID: "1", Action: "delete", Target: "Ursus", OK: false, Error: "not found"})
	_ = st.AppendAudit(ctx, AuditEntry{ActorID: "1", Action: "add", Target: "Ursus", OK: true})

	f, err := os.Open(filepath.Join(dir, "resets.audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer f.Close()
	var actions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("audit line %q: %v", sc.Text(), err)
		}
		actions = append(actions, e.Action)
	}
	if !reflect.DeepEqual(actions, []string{"delete", "add"}) {
		t.Fatalf("audit actions = %v", actions)
	}
}

func TestFileStoreCorruptFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if _, err := st.Load(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestBadgerAuditOrder(t *testing.T) {
	st := openDriver(t, "badger").(*badgerStore)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []string{"add", "edit", "delete"} {
		if err := st.AppendAudit(ctx, AuditEntry{At: base.Add(time.Duration(i) * time.Second), Action: action}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := st.auditEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Action != "add" || entries[2].Action != "delete" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mongo", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}
