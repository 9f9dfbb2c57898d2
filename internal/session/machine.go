// Package session owns the per-user conversation state machine: search,
// result selection, the random-track shortcut, and download history.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/m3rciful/tunebot/internal/catalog"
	"github.com/m3rciful/tunebot/internal/delivery"
	"github.com/m3rciful/tunebot/internal/logger"
	"github.com/m3rciful/tunebot/internal/store"
)

// State identifies a conversation step. Unlike the raw persisted record the
// state is explicit, so transitions are checkable instead of being re-derived
// from field presence.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
	// StateAwaitingQuery is entered after an explicit "start search" action.
	StateAwaitingQuery State = "awaiting_query"
	// StateResultsShown is entered after a successful search populated results.
	StateResultsShown State = "results_shown"
)

// Callback actions understood by the transport layer.
const (
	ActionStartSearch = "start_search"
	ActionNewSearch   = "new_search"
	ActionRandomTrack = "random_track"
	ActionDownload    = "download"
)

// Event carries the identity of one inbound chat event.
type Event struct {
	UserID    string
	ChatID    int64
	FirstName string
}

// Button is one selectable menu entry handed to the outbound sink.
type Button struct {
	Label   string
	Action  string
	Payload string
}

// Searcher is the catalog capability the machine consumes.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []catalog.Track
}

// Deliverer hands a chosen track to the download orchestrator.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, track catalog.Track, done func(delivery.Outcome))
}

// Messenger is the outbound message sink the machine needs.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	// SendStatus sends a text message and returns its ID for in-place edits.
	SendStatus(ctx context.Context, chatID int64, text string) (int, error)
	// EditStatus rewrites a previously sent status message; implementations
	// fall back to sending a fresh message when messageID is not positive.
	EditStatus(ctx context.Context, chatID int64, messageID int, text string, rows ...[]Button) error
	SendMenu(ctx context.Context, chatID int64, text string, rows ...[]Button) error
}

// randomVocabulary feeds the random-track shortcut.
var randomVocabulary = []string{"lo fi", "chillhop", "deep house", "synthwave", "indie rock"}

const (
	menuSize          = 5
	menuTitleLimit    = 30
	menuTitleTruncate = 27
	minQueryRunes     = 2
)

// Options tune the machine.
type Options struct {
	// SearchLimit caps tracks requested per search; 0 -> 10.
	SearchLimit int
}

// Machine drives per-user state transitions for every inbound event.
type Machine struct {
	mu     sync.RWMutex
	users  map[string]*store.User
	states map[string]State

	store     store.Store
	catalog   Searcher
	deliverer Deliverer
	messenger Messenger

	searchLimit int
	randIndex   func(n int) int
}

// NewMachine loads persisted state and wires the machine's collaborators.
// A load failure is soft: the bot starts with empty state and a warning.
func NewMachine(st store.Store, cat Searcher, del Deliverer, msg Messenger, opts Options) *Machine {
	users, err := st.Load()
	if err != nil {
		logger.Warn(context.Background(), "session", "state.load.warn",
			slog.String("err", err.Error()),
		)
	}
	if users == nil {
		users = make(map[string]*store.User)
	}
	limit := opts.SearchLimit
	if limit <= 0 {
		limit = 10
	}
	m := &Machine{
		users:       users,
		states:      make(map[string]State),
		store:       st,
		catalog:     cat,
		deliverer:   del,
		messenger:   msg,
		searchLimit: limit,
		randIndex:   rand.IntN,
	}
	logger.Info(context.Background(), "session", "state.loaded",
		slog.Int("users", len(users)),
	)
	return m
}

// Greet handles first contact: it creates the user record lazily and presents
// the action menu.
func (m *Machine) Greet(ctx context.Context, ev Event) {
	m.ensureUser(ev.UserID)
	name := ev.FirstName
	if name == "" {
		name = "there"
	}
	_ = m.messenger.SendMenu(ctx, ev.ChatID,
		fmt.Sprintf("🎵 Music Bot\nHi, %s!\n\nChoose an action:", name),
		[]Button{{Label: "🔍 Search music", Action: ActionStartSearch}},
		[]Button{{Label: "🎲 Random track", Action: ActionRandomTrack}},
	)
}

// PromptSearch asks for a query and moves the user toward AwaitingQuery.
func (m *Machine) PromptSearch(ctx context.Context, ev Event) {
	m.ensureUser(ev.UserID)
	m.setState(ev.UserID, StateAwaitingQuery)
	_ = m.messenger.SendText(ctx, ev.ChatID, "🎵 Enter a song or artist name:")
}

// HandleText processes free-text input. Short input and command markers are
// rejected before any catalog I/O. A non-empty search replaces the cached
// results wholesale and persists exactly once.
func (m *Machine) HandleText(ctx context.Context, ev Event, text string) {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "/") {
		return
	}
	m.ensureUser(ev.UserID)

	if utf8.RuneCountInString(text) < minQueryRunes {
		_ = m.messenger.SendText(ctx, ev.ChatID, "❌ Enter at least 2 characters")
		return
	}

	statusID, statusErr := m.messenger.SendStatus(ctx, ev.ChatID, fmt.Sprintf("🔍 Searching: %s", text))
	if statusErr != nil {
		statusID = 0
	}

	results := m.catalog.Search(ctx, text, m.searchLimit)
	if len(results) == 0 {
		// no mutation, no persistence; the logical state stays as it was
		_ = m.messenger.EditStatus(ctx, ev.ChatID, statusID, "❌ Nothing found")
		logger.Debug(ctx, "session", "search.empty",
			slog.String("query", logger.SanitizeLimit(text, 128)),
		)
		return
	}

	m.mu.Lock()
	user := m.users[ev.UserID]
	user.SearchResults = results
	user.SearchQuery = text
	m.states[ev.UserID] = StateResultsShown
	m.mu.Unlock()
	m.persist(ctx)

	_ = m.messenger.EditStatus(ctx, ev.ChatID, statusID,
		fmt.Sprintf("🔍 Found %d tracks for: %s\n\nPick a track to download:", len(results), text),
		m.resultRows(results)...,
	)
	logger.Info(ctx, "session", "search.done",
		slog.String("query", logger.SanitizeLimit(text, 128)),
		slog.Int("count", len(results)),
	)
}

// Select resolves a result-menu selection. An out-of-range index is a silent
// no-op: it only happens with stale button payloads after a newer search.
func (m *Machine) Select(ctx context.Context, ev Event, index int) {
	m.ensureUser(ev.UserID)

	m.mu.RLock()
	user := m.users[ev.UserID]
	var track catalog.Track
	ok := index >= 0 && index < len(user.SearchResults)
	if ok {
		track = user.SearchResults[index]
	}
	m.mu.RUnlock()

	if !ok {
		logger.Debug(ctx, "session", "select.stale", slog.Int("index", index))
		return
	}

	m.deliverer.Deliver(ctx, ev.ChatID, track, func(out delivery.Outcome) {
		dctx := logger.Detach(ctx)
		if out == delivery.Failed {
			return
		}
		m.recordDownload(dctx, ev.UserID, track)
		_ = m.messenger.SendMenu(dctx, ev.ChatID, "✅ Done! What next?",
			[]Button{{Label: "🔍 New search", Action: ActionNewSearch}},
			[]Button{{Label: "🎲 Random track", Action: ActionRandomTrack}},
		)
	})
}

// Random searches one random vocabulary term and delivers one random track
// from the result set. An empty result set is a silent no-op.
func (m *Machine) Random(ctx context.Context, ev Event) {
	m.ensureUser(ev.UserID)

	term := randomVocabulary[m.randIndex(len(randomVocabulary))]
	_ = m.messenger.SendText(ctx, ev.ChatID, fmt.Sprintf("🎲 Searching a random track: %s", term))

	results := m.catalog.Search(ctx, term, m.searchLimit)
	if len(results) == 0 {
		logger.Debug(ctx, "session", "random.empty", slog.String("term", term))
		return
	}
	track := results[m.randIndex(len(results))]

	m.deliverer.Deliver(ctx, ev.ChatID, track, func(out delivery.Outcome) {
		if out == delivery.Failed {
			return
		}
		m.recordDownload(logger.Detach(ctx), ev.UserID, track)
	})
}

// State returns the current conversation state for a user.
func (m *Machine) State(userID string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[userID]; ok {
		return st
	}
	return StateIdle
}

// History returns a copy of the user's download history.
func (m *Machine) History(userID string) []catalog.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil
	}
	return append([]catalog.Track(nil), user.DownloadHistory...)
}

// Stats reports user and download totals for the admin command.
func (m *Machine) Stats() (users, downloads int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		downloads += len(user.DownloadHistory)
	}
	return len(m.users), downloads
}

func (m *Machine) ensureUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = &store.User{}
	}
}

func (m *Machine) setState(userID string, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = st
}

// recordDownload appends one track to the user's history and persists.
func (m *Machine) recordDownload(ctx context.Context, userID string, track catalog.Track) {
	m.mu.Lock()
	user, ok := m.users[userID]
	if !ok {
		user = &store.User{}
		m.users[userID] = user
	}
	user.DownloadHistory = append(user.DownloadHistory, track)
	m.mu.Unlock()
	m.persist(ctx)
}

// persist saves a snapshot of the whole user mapping. A save failure is
// logged and the in-memory state stays authoritative.
func (m *Machine) persist(ctx context.Context) {
	m.mu.RLock()
	snapshot := make(map[string]*store.User, len(m.users))
	for id, user := range m.users {
		snapshot[id] = user.Clone()
	}
	m.mu.RUnlock()

	if err := m.store.Save(snapshot); err != nil {
		logger.Warn(ctx, "session", "persist.fail", slog.String("err", err.Error()))
	}
}

func (m *Machine) resultRows(results []catalog.Track) [][]Button {
	shown := len(results)
	if shown > menuSize {
		shown = menuSize
	}
	rows := make([][]Button, 0, shown+1)
	for i := 0; i < shown; i++ {
		track := results[i]
		rows = append(rows, []Button{{
			Label:   fmt.Sprintf("🎵 %s • %s", displayTitle(track.Title), track.Artist),
			Action:  ActionDownload,
			Payload: strconv.Itoa(i),
		}})
	}
	rows = append(rows, []Button{{Label: "🔍 New search", Action: ActionNewSearch}})
	return rows
}

// displayTitle truncates long titles for menu labels only; stored titles are
// never truncated.
func displayTitle(title string) string {
	r := []rune(title)
	if len(r) <= menuTitleLimit {
		return title
	}
	return string(r[:menuTitleTruncate]) + "..."
}
