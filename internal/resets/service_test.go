package resets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"resetbot/internal/eventbus"
	"resetbot/internal/reset"
	"resetbot/internal/storage"
	logx "resetbot/pkg/logx"
)

type memStore struct {
	st      reset.State
	audit   []storage.AuditEntry
	saves   int
	loadErr error
}

func (m *memStore) Load(context.Context) (reset.State, error) {
	if m.loadErr != nil {
		return reset.State{}, m.loadErr
	}
	return m.st.Clone(), nil
}

func (m *memStore) Save(_ context.Context, st reset.State) error {
	m.saves++
	m.st = st.Clone()
	return nil
}

func (m *memStore) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	m.audit = append(m.audit, e)
	return nil
}

type countingBoards struct{ calls int }

func (b *countingBoards) Refresh(context.Context, reset.State) error {
	b.calls++
	return nil
}

// Monday 2024-01-01 12:00 America/New_York.
func newService(t *testing.T) (*Service, *memStore, *countingBoards, *time.Time) {
	t.Helper()
	loc, err := reset.LoadZone("")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, loc)
	store := &memStore{}
	boards := &countingBoards{}
	svc := New(store, boards, reset.ClockFunc(func() time.Time { return now }), eventbus.New(), logx.Nop())
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc, store, boards, &now
}

var owner = Actor{Transport: "telegram", ID: "42", Name: "owner"}

func TestAddDailyAndDuplicate(t *testing.T) {
	svc, store, boards, _ := newService(t)
	ctx := context.Background()

	e, err := svc.AddDaily(ctx, owner, DailyInput{Name: "  Ursus ", Emoji: "🐻", Slots: []string{"14:00,21:00"}})
	if err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if e.ID != "id-1" || e.Name != "Ursus" || len(e.Slots) != 2 {
		t.Fatalf("event = %+v", e)
	}
	if _, err := svc.AddDaily(ctx, owner, DailyInput{Name: "ursus"}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
	// Same name in the other class is allowed.
	if _, err := svc.AddWeekly(ctx, owner, WeeklyInput{Name: "Ursus", Time: "20:00", Day: "thursday"}); err != nil {
		t.Fatalf("weekly with daily name: %v", err)
	}
	if len(store.st.Daily) != 1 || len(store.st.Weekly) != 1 {
		t.Fatalf("state = %+v", store.st)
	}
	if boards.calls != 2 {
		t.Fatalf("board refreshes = %d, want 2", boards.calls)
	}
	if len(store.audit) != 3 || store.audit[1].OK || store.audit[1].Error == "" {
		t.Fatalf("audit = %+v", store.audit)
	}
}

func TestAddDailyRejectsBadInput(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.AddDaily(ctx, owner, DailyInput{Name: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.AddDaily(ctx, owner, DailyInput{Name: "A", Slots: []string{"25:00"}}); !errors.Is(err, reset.ErrInvalidTimeFormat) {
		t.Fatalf("err = %v, want ErrInvalidTimeFormat", err)
	}
	if store.saves != 0 {
		t.Fatalf("invalid input was saved")
	}
}

func TestAddWeeklyComputesTimestamp(t *testing.T) {
	svc, _, _, now := newService(t)

	e, err := svc.AddWeekly(context.Background(), owner, WeeklyInput{Name: "Zakum", Time: "8:00", Day: "Thursday"})
	if err != nil {
		t.Fatalf("AddWeekly: %v", err)
	}
	want := time.Date(2024, 1, 4, 8, 0, 0, 0, now.Location())
	if e.Timestamp != want.Unix() || e.Time != "08:00" || e.Day != "thursday" {
		t.Fatalf("event = %+v, want timestamp %d", e, want.Unix())
	}

	cases := []struct {
		in   WeeklyInput
		want error
	}{
		{WeeklyInput{Name: "X", Time: "8pm", Day: "monday"}, reset.ErrInvalidTimeFormat},
		{WeeklyInput{Name: "X", Time: "20:00", Day: "funday"}, reset.ErrInvalidWeekday},
		{WeeklyInput{Name: "zakum", Time: "20:00", Day: "monday"}, ErrDuplicateName},
	}
	for _, tc := range cases {
		if _, err := svc.AddWeekly(context.Background(), owner, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("AddWeekly(%+v) err = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestDeletePrefersDaily(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.AddDaily(ctx, owner, DailyInput{Name: "Boss"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddWeekly(ctx, owner, WeeklyInput{Name: "Boss", Time: "20:00", Day: "monday"}); err != nil {
		t.Fatal(err)
	}

	e, err := svc.Delete(ctx, owner, "BOSS")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if e.Frequency != reset.Daily || len(store.st.Daily) != 0 || len(store.st.Weekly) != 1 {
		t.Fatalf("deleted %+v, state %+v", e, store.st)
	}
	if _, err := svc.Delete(ctx, owner, "boss"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := svc.Delete(ctx, owner, "boss"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestEditWeeklyKeepsMissingFields(t *testing.T) {
	svc, store, _, now := newService(t)
	ctx := context.Background()
	if _, err := svc.AddWeekly(ctx, owner, WeeklyInput{Name: "Zakum", Time: "20:00", Day: "thursday"}); err != nil {
		t.Fatal(err)
	}

	e, err := svc.Edit(ctx, owner, "zakum", EditInput{Day: ptr("saturday")})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	want := time.Date(2024, 1, 6, 20, 0, 0, 0, now.Location())
	if e.Time != "20:00" || e.Day != "saturday" || e.Timestamp != want.Unix() {
		t.Fatalf("edited = %+v", e)
	}

	e, err = svc.Edit(ctx, owner, "zakum", EditInput{Name: ptr("Chaos Zakum"), Emoji: ptr("🔥")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if e.Timestamp != want.Unix() || e.Name != "Chaos Zakum" || store.st.Weekly[0].ID != "id-1" {
		t.Fatalf("rename changed schedule or id: %+v", e)
	}
}

func TestEditRejects(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.AddDaily(ctx, owner, DailyInput{Name: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddDaily(ctx, owner, DailyInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		in   EditInput
		want error
	}{
		{"missing", EditInput{Name: ptr("Z")}, ErrNotFound},
		{"a", EditInput{}, ErrInvalidInput},
		{"a", EditInput{Name: ptr("b")}, ErrDuplicateName},
		{"a", EditInput{Time: ptr("10:00")}, ErrInvalidInput},
		{"a", EditInput{Slots: ptr([]string{"99:00"})}, reset.ErrInvalidTimeFormat},
	}
	for _, tc := range cases {
		if _, err := svc.Edit(ctx, owner, tc.name, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("Edit(%q, %+v) err = %v, want %v", tc.name, tc.in, err, tc.want)
		}
	}
	// Renaming to its own name with another case is fine.
	if _, err := svc.Edit(ctx, owner, "a", EditInput{Name: ptr("A")}); err != nil {
		t.Fatalf("self rename: %v", err)
	}
}

func TestRollForwardPassed(t *testing.T) {
	svc, store, _, now := newService(t)
	ctx := context.Background()
	if _, err := svc.AddWeekly(ctx, owner, WeeklyInput{Name: "Zakum", Time: "20:00", Day: "thursday"}); err != nil {
		t.Fatal(err)
	}
	saves := store.saves

	if n, err := svc.RollForwardPassed(ctx); err != nil || n != 0 || store.saves != saves {
		t.Fatalf("future occurrence rolled: n=%d err=%v", n, err)
	}

	*now = now.AddDate(0, 0, 10) // Thursday 2024-01-11 12:00
	n, err := svc.RollForwardPassed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	want := time.Date(2024, 1, 11, 20, 0, 0, 0, now.Location())
	if store.st.Weekly[0].Timestamp != want.Unix() {
		t.Fatalf("timestamp = %v, want %v", time.Unix(store.st.Weekly[0].Timestamp, 0).In(now.Location()), want)
	}
}

func TestLoadFailureIsAudited(t *testing.T) {
	svc, store, boards, _ := newService(t)
	store.loadErr = fmt.Errorf("%w: disk", storage.ErrStoreUnavailable)

	if _, err := svc.AddDaily(context.Background(), owner, DailyInput{Name: "A"}); !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(store.audit) != 1 || store.audit[0].OK {
		t.Fatalf("audit = %+v", store.audit)
	}
	if boards.calls != 0 {
		t.Fatalf("boards refreshed after failed mutation")
	}
}
