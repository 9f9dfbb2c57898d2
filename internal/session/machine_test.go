package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/m3rciful/tunebot/internal/catalog"
	"github.com/m3rciful/tunebot/internal/delivery"
	"github.com/m3rciful/tunebot/internal/store"
)

type memStore struct {
	users   map[string]*store.User
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Load() (map[string]*store.User, error) {
	if s.users == nil {
		s.users = make(map[string]*store.User)
	}
	return s.users, s.loadErr
}

func (s *memStore) Save(users map[string]*store.User) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.users = users
	return nil
}

type fakeSearcher struct {
	results map[string][]catalog.Track
	calls   []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) []catalog.Track {
	f.calls = append(f.calls, query)
	return f.results[query]
}

type fakeDeliverer struct {
	tracks  []catalog.Track
	outcome delivery.Outcome
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ int64, track catalog.Track, done func(delivery.Outcome)) {
	f.tracks = append(f.tracks, track)
	if done != nil {
		done(f.outcome)
	}
}

type sink struct {
	texts    []string
	statuses []string
	edits    []string
	menus    []string
	rows     [][][]Button
}

func (s *sink) SendText(_ context.Context, _ int64, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func (s *sink) SendStatus(_ context.Context, _ int64, text string) (int, error) {
	s.statuses = append(s.statuses, text)
	return len(s.statuses), nil
}

func (s *sink) EditStatus(_ context.Context, _ int64, _ int, text string, rows ...[]Button) error {
	s.edits = append(s.edits, text)
	s.rows = append(s.rows, rows)
	return nil
}

func (s *sink) SendMenu(_ context.Context, _ int64, text string, rows ...[]Button) error {
	s.menus = append(s.menus, text)
	s.rows = append(s.rows, rows)
	return nil
}

func tracksN(n int) []catalog.Track {
	out := make([]catalog.Track, n)
	for i := range out {
		out[i] = catalog.Track{
			Title:    fmt.Sprintf("Track %d", i),
			URL:      fmt.Sprintf("https://example.com/%d", i),
			Duration: 100 + i,
			Artist:   fmt.Sprintf("Artist %d", i),
		}
	}
	return out
}

func newTestMachine(st store.Store, cat Searcher, del Deliverer, msg Messenger) *Machine {
	return NewMachine(st, cat, del, msg, Options{SearchLimit: 10})
}

func ev() Event { return Event{UserID: "42", ChatID: 100, FirstName: "Alice"} }

func TestSearchSelectDownload(t *testing.T) {
	st := &memStore{}
	cat := &fakeSearcher{results: map[string][]catalog.Track{"daft punk": tracksN(7)}}
	del := &fakeDeliverer{outcome: delivery.Delivered}
	msg := &sink{}
	m := newTestMachine(st, cat, del, msg)
	ctx := context.Background()

	m.PromptSearch(ctx, ev())
	if got := m.State("42"); got != StateAwaitingQuery {
		t.Fatalf("state = %v, want awaiting_query", got)
	}

	m.HandleText(ctx, ev(), "daft punk")
	if got := m.State("42"); got != StateResultsShown {
		t.Fatalf("state = %v, want results_shown", got)
	}
	if st.saves != 1 {
		t.Fatalf("saves = %d, want exactly 1 after search", st.saves)
	}
	if len(msg.rows) != 1 {
		t.Fatalf("expected one keyboard, got %d", len(msg.rows))
	}
	// 5 result rows plus the new-search row
	if rows := msg.rows[0]; len(rows) != 6 {
		t.Fatalf("menu rows = %d, want 6", len(rows))
	}

	m.Select(ctx, ev(), 2)
	if len(del.tracks) != 1 || del.tracks[0].Title != "Track 2" {
		t.Fatalf("delivered = %+v, want Track 2", del.tracks)
	}
	hist := m.History("42")
	if len(hist) != 1 || hist[0].Title != "Track 2" {
		t.Fatalf("history = %+v, want Track 2", hist)
	}
	if st.saves != 2 {
		t.Fatalf("saves = %d, want 2 after download", st.saves)
	}
}

func TestHandleTextRejectsShortQuery(t *testing.T) {
	st := &memStore{}
	cat := &fakeSearcher{}
	msg := &sink{}
	m := newTestMachine(st, cat, &fakeDeliverer{}, msg)

	m.HandleText(context.Background(), ev(), "a")
	if len(cat.calls) != 0 {
		t.Fatalf("catalog must not be queried, got %v", cat.calls)
	}
	if len(msg.texts) != 1 || !strings.Contains(msg.texts[0], "at least 2") {
		t.Fatalf("expected short-query notice, got %v", msg.texts)
	}
	if st.saves != 0 {
		t.Fatalf("no persistence expected, got %d saves", st.saves)
	}
}

func TestHandleTextIgnoresCommandsAndBlank(t *testing.T) {
	cat := &fakeSearcher{}
	msg := &sink{}
	m := newTestMachine(&memStore{}, cat, &fakeDeliverer{}, msg)
	ctx := context.Background()

	m.HandleText(ctx, ev(), "/start")
	m.HandleText(ctx, ev(), "   ")
	if len(cat.calls) != 0 {
		t.Fatalf("catalog must not be queried, got %v", cat.calls)
	}
	if len(msg.texts)+len(msg.statuses) != 0 {
		t.Fatal("no outbound messages expected")
	}
}

func TestHandleTextEmptyResultsKeepsState(t *testing.T) {
	st := &memStore{}
	cat := &fakeSearcher{results: map[string][]catalog.Track{"hits": tracksN(3)}}
	msg := &sink{}
	m := newTestMachine(st, cat, &fakeDeliverer{outcome: delivery.Delivered}, msg)
	ctx := context.Background()

	m.HandleText(ctx, ev(), "hits")
	savesAfterHit := st.saves

	m.HandleText(ctx, ev(), "no such thing")
	if got := m.State("42"); got != StateResultsShown {
		t.Fatalf("state = %v, want results_shown preserved", got)
	}
	if st.saves != savesAfterHit {
		t.Fatalf("empty search must not persist: saves %d -> %d", savesAfterHit, st.saves)
	}
	last := msg.edits[len(msg.edits)-1]
	if !strings.Contains(last, "Nothing found") {
		t.Fatalf("expected nothing-found notice, got %q", last)
	}

	// previous results stay selectable
	m.Select(ctx, ev(), 0)
	if len(m.History("42")) != 1 {
		t.Fatal("selection from previous results should still work")
	}
}

func TestNewSearchReplacesResults(t *testing.T) {
	st := &memStore{}
	cat := &fakeSearcher{results: map[string][]catalog.Track{
		"first":  tracksN(7),
		"second": tracksN(2),
	}}
	del := &fakeDeliverer{outcome: delivery.Delivered}
	m := newTestMachine(st, cat, del, &sink{})
	ctx := context.Background()

	m.HandleText(ctx, ev(), "first")
	m.HandleText(ctx, ev(), "second")

	// index 5 was valid for "first" but is stale now
	m.Select(ctx, ev(), 5)
	if len(del.tracks) != 0 {
		t.Fatalf("stale index must be a no-op, delivered %+v", del.tracks)
	}

	m.Select(ctx, ev(), 1)
	if len(del.tracks) != 1 || del.tracks[0].Title != "Track 1" {
		t.Fatalf("delivered = %+v, want Track 1 from second search", del.tracks)
	}
}

func TestSelectNegativeIndexNoOp(t *testing.T) {
	cat := &fakeSearcher{results: map[string][]catalog.Track{"q1": tracksN(3)}}
	del := &fakeDeliverer{outcome: delivery.Delivered}
	m := newTestMachine(&memStore{}, cat, del, &sink{})
	ctx := context.Background()

	m.HandleText(ctx, ev(), "q1")
	m.Select(ctx, ev(), -1)
	m.Select(ctx, ev(), 3)
	if len(del.tracks) != 0 {
		t.Fatalf("out-of-range selects must not deliver, got %+v", del.tracks)
	}
}

func TestFailedDeliveryNotRecorded(t *testing.T) {
	st := &memStore{}
	cat := &fakeSearcher{results: map[string][]catalog.Track{"q1": tracksN(1)}}
	del := &fakeDeliverer{outcome: delivery.Failed}
	m := newTestMachine(st, cat, del, &sink{})
	ctx := context.Background()

	m.HandleText(ctx, ev(), "q1")
	savesAfterSearch := st.saves

	m.Select(ctx, ev(), 0)
	if len(m.History("42")) != 0 {
		t.Fatal("failed delivery must not enter history")
	}
	if st.saves != savesAfterSearch {
		t.Fatal("failed delivery must not persist")
	}
}

func TestFallbackCountsAsDelivered(t *testing.T) {
	cat := &fakeSearcher{results: map[string][]catalog.Track{"q1": tracksN(1)}}
	del := &fakeDeliverer{outcome: delivery.FallbackSent}
	m := newTestMachine(&memStore{}, cat, del, &sink{})
	ctx := context.Background()

	m.HandleText(ctx, ev(), "q1")
	m.Select(ctx, ev(), 0)
	if len(m.History("42")) != 1 {
		t.Fatal("fallback delivery must enter history")
	}
}

func TestRandomDeterministic(t *testing.T) {
	term := randomVocabulary[1]
	st := &memStore{}
	cat := &fakeSearcher{results: map[string][]catalog.Track{term: tracksN(4)}}
	del := &fakeDeliverer{outcome: delivery.Delivered}
	msg := &sink{}
	m := newTestMachine(st, cat, del, msg)
	m.randIndex = func(int) int { return 1 }

	m.Random(context.Background(), ev())
	if len(cat.calls) != 1 || cat.calls[0] != term {
		t.Fatalf("searched %v, want [%q]", cat.calls, term)
	}
	if len(del.tracks) != 1 || del.tracks[0].Title != "Track 1" {
		t.Fatalf("delivered = %+v, want Track 1", del.tracks)
	}
	if len(m.History("42")) != 1 {
		t.Fatal("random delivery must enter history")
	}
}

func TestRandomEmptyResultsSilent(t *testing.T) {
	cat := &fakeSearcher{}
	del := &fakeDeliverer{}
	msg := &sink{}
	m := newTestMachine(&memStore{}, cat, del, msg)
	m.randIndex = func(int) int { return 0 }

	m.Random(context.Background(), ev())
	if len(del.tracks) != 0 {
		t.Fatalf("no delivery expected, got %+v", del.tracks)
	}
	// only the announcement text goes out
	if len(msg.texts) != 1 {
		t.Fatalf("texts = %v, want only the announcement", msg.texts)
	}
}

func TestGreetUsesFallbackName(t *testing.T) {
	msg := &sink{}
	m := newTestMachine(&memStore{}, &fakeSearcher{}, &fakeDeliverer{}, msg)

	m.Greet(context.Background(), Event{UserID: "9", ChatID: 5})
	if len(msg.menus) != 1 || !strings.Contains(msg.menus[0], "there") {
		t.Fatalf("expected fallback greeting, got %v", msg.menus)
	}
}

func TestMachineStartsWithStoreError(t *testing.T) {
	st := &memStore{loadErr: errors.New("disk gone")}
	m := newTestMachine(st, &fakeSearcher{}, &fakeDeliverer{}, &sink{})
	if got := m.State("42"); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	users, downloads := m.Stats()
	if users != 0 || downloads != 0 {
		t.Fatalf("stats = (%d,%d), want empty", users, downloads)
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	st := &memStore{saveErr: errors.New("read-only fs")}
	cat := &fakeSearcher{results: map[string][]catalog.Track{"q1": tracksN(2)}}
	m := newTestMachine(st, cat, &fakeDeliverer{outcome: delivery.Delivered}, &sink{})
	ctx := context.Background()

	m.HandleText(ctx, ev(), "q1")
	if got := m.State("42"); got != StateResultsShown {
		t.Fatalf("state = %v, want results_shown despite save failure", got)
	}
	m.Select(ctx, ev(), 0)
	if len(m.History("42")) != 1 {
		t.Fatal("history must advance despite save failure")
	}
}

func TestResultRowsTruncateLongTitles(t *testing.T) {
	long := strings.Repeat("y", 50)
	cat := &fakeSearcher{results: map[string][]catalog.Track{"q1": {{
		Title:  long,
		URL:    "https://example.com/long",
		Artist: "A",
	}}}}
	msg := &sink{}
	m := newTestMachine(&memStore{}, cat, &fakeDeliverer{}, msg)

	m.HandleText(context.Background(), ev(), "q1")
	label := msg.rows[0][0][0].Label
	if strings.Contains(label, long) {
		t.Fatalf("label not truncated: %q", label)
	}
	if !strings.Contains(label, strings.Repeat("y", 27)+"...") {
		t.Fatalf("unexpected truncation: %q", label)
	}

	// stored results keep the full title
	if hist := m.users["42"].SearchResults[0].Title; hist != long {
		t.Fatalf("stored title truncated: %q", hist)
	}
}
