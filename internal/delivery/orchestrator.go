// Package delivery executes track downloads off the update-handling path and
// turns each attempt into exactly one user-visible result: the audio itself,
// a listen-online fallback link, or a generic error notice.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/tunebot/internal/catalog"
	"github.com/m3rciful/tunebot/internal/logger"
)

// Outcome is the tri-state result of one delivery attempt.
type Outcome int

const (
	// Delivered means the audio message reached the chat.
	Delivered Outcome = iota
	// FallbackSent means the audio failed but the listen-online link was sent.
	FallbackSent
	// Failed means not even the fallback could be transmitted.
	Failed
)

// String implements fmt.Stringer for log attributes.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case FallbackSent:
		return "fallback_sent"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Audio describes one outbound audio message.
type Audio struct {
	Path      string
	FileName  string
	Title     string
	Performer string
	Caption   string
}

// Fetcher retrieves track audio. Implemented by catalog.Gateway.
type Fetcher interface {
	Fetch(ctx context.Context, track catalog.Track) (*catalog.AudioFile, error)
}

// Messenger is the outbound sink the orchestrator needs.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendAudio(ctx context.Context, chatID int64, audio Audio) error
}

// tagLimit is Telegram's display limit for audio title/performer tags.
const tagLimit = 64

// Orchestrator runs the fetch-then-send pipeline with the fallback policy.
type Orchestrator struct {
	fetcher   Fetcher
	messenger Messenger
	queue     *Queue
}

// NewOrchestrator wires the pipeline. A nil queue makes Deliver synchronous,
// which unit tests rely on.
func NewOrchestrator(fetcher Fetcher, messenger Messenger, queue *Queue) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, messenger: messenger, queue: queue}
}

// Deliver schedules a download for the given chat and reports the outcome to
// done once the attempt finishes. A saturated or closed queue rejects the
// request with a short notice instead of running the fetch on the calling
// goroutine: update handling must never stall behind a download.
func (o *Orchestrator) Deliver(ctx context.Context, chatID int64, track catalog.Track, done func(Outcome)) {
	run := func(ctx context.Context) {
		out := o.deliver(ctx, chatID, track)
		if done != nil {
			done(out)
		}
	}
	if o.queue == nil {
		run(ctx)
		return
	}
	if err := o.queue.Enqueue(ctx, run); err != nil {
		logger.Warn(ctx, "download", "queue.reject", slog.String("err", err.Error()))
		_ = o.messenger.SendText(ctx, chatID, "⏳ Too many downloads right now, try again in a moment")
		if done != nil {
			done(Failed)
		}
	}
}

func (o *Orchestrator) deliver(ctx context.Context, chatID int64, track catalog.Track) Outcome {
	_ = o.messenger.SendText(ctx, chatID, fmt.Sprintf("⏬ Downloading: %s", track.Title))

	audio, err := o.fetcher.Fetch(ctx, track)
	if err == nil {
		defer audio.Release()
		sendErr := o.messenger.SendAudio(ctx, chatID, Audio{
			Path:      audio.Path,
			FileName:  audio.Name,
			Title:     truncateRunes(track.Title, tagLimit),
			Performer: truncateRunes(track.Artist, tagLimit),
			Caption:   fmt.Sprintf("🎵 %s\n🎤 %s", track.Title, track.Artist),
		})
		if sendErr == nil {
			logger.Info(ctx, "download", "deliver.done",
				slog.String("outcome", Delivered.String()),
				slog.String("url", track.URL),
			)
			return Delivered
		}
		err = sendErr
	}

	logger.Warn(ctx, "download", "deliver.fallback",
		slog.String("url", track.URL),
		slog.String("err", err.Error()),
	)
	if fbErr := o.messenger.SendText(ctx, chatID, fmt.Sprintf("🎧 Listen online:\n%s", track.URL)); fbErr == nil {
		return FallbackSent
	}

	logger.Error(ctx, "download", "deliver.fail", slog.String("url", track.URL))
	_ = o.messenger.SendText(ctx, chatID, "❌ An error occurred")
	return Failed
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
