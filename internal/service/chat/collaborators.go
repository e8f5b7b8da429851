package chat

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the runtime timer heap.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Clipboard receives copied message text.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Downloader saves an exported transcript under filename.
type Downloader interface {
	Save(ctx context.Context, filename string, payload []byte) error
}

// Confirmer gates destructive operations behind an explicit yes/no answer.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// StaticConfirmer answers every prompt with the same value.
type StaticConfirmer bool

const (
	Confirmed StaticConfirmer = true
	Declined  StaticConfirmer = false
)

// Confirm implements Confirmer.
func (c StaticConfirmer) Confirm(context.Context, string) (bool, error) {
	return bool(c), nil
}

// Publisher fans session events out to observers.
type Publisher interface {
	Publish(ctx context.Context, event chat.Event) error
}

// Forgetter is implemented by publishers that retain events per session and
// can drop them once the session is deleted.
type Forgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

// Delay draws the simulated typing time: Base plus a uniform jitter in [0, Jitter].
type Delay struct {
	Base   time.Duration
	Jitter time.Duration
}

// DefaultDelay mirrors the chat page's 1.2s to 2.0s typing window.
func DefaultDelay() Delay {
	return Delay{Base: 1200 * time.Millisecond, Jitter: 800 * time.Millisecond}
}

// Next returns the next reply delay.
func (d Delay) Next() time.Duration {
	base := max(d.Base, 0)
	if d.Jitter <= 0 {
		return base
	}
	return base + rand.N(d.Jitter+1)
}
