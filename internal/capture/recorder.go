package capture

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/khanglvm/monitome/internal/storage"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrPermissionDenied means the host has not granted screen capture.
	ErrPermissionDenied = errors.New("screen capture permission denied")

	// ErrCaptureFailed is a transient OS-level capture failure.
	ErrCaptureFailed = errors.New("capture failed")
)

// Grabber takes one raw screenshot.
type Grabber interface {
	Grab(ctx context.Context) ([]byte, error)
}

// Permissions exposes the host's permission state. The recorder reads it
// and never prompts.
type Permissions interface {
	CaptureGranted() bool
	AccessibilityGranted() bool
}

// StaticPermissions is a fixed permission state, typically from config.
type StaticPermissions struct {
	Capture       bool
	Accessibility bool
}

func (p StaticPermissions) CaptureGranted() bool       { return p.Capture }
func (p StaticPermissions) AccessibilityGranted() bool { return p.Accessibility }

// Store persists a finished capture.
type Store interface {
	Append(ctx context.Context, shot *storage.Screenshot, image []byte) error
}

// Recorder performs captures one at a time.
type Recorder struct {
	grabber Grabber
	perms   Permissions
	store   Store
	logger  *slog.Logger

	// mu serializes captures and guards entropy.
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

// NewRecorder creates a recorder. logger may be nil.
func NewRecorder(g Grabber, p Permissions, s Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		grabber: g,
		perms:   p,
		store:   s,
		logger:  logger.With("component", "recorder"),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// CaptureNow takes a screenshot and writes it to storage.
//
// It fails with ErrPermissionDenied when capture permission is missing,
// ErrCaptureFailed when the grab itself fails, and storage.ErrWriteFailed
// when the result cannot be persisted. Each failure affects this attempt
// only.
func (r *Recorder) CaptureNow(ctx context.Context, t Trigger) (*storage.Screenshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.perms.CaptureGranted() {
		return nil, ErrPermissionDenied
	}

	at := r.now()
	image, err := r.grabber.Grab(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrCaptureFailed)
	}

	id, err := ulid.New(ulid.Timestamp(at), r.entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: id generation: %v", ErrCaptureFailed, err)
	}

	shot := storage.NewScreenshot(id.String(), at, t.String())
	if err := r.store.Append(ctx, &shot, image); err != nil {
		return nil, err
	}

	r.logger.Debug("captured", "screenshot_id", shot.ID, "trigger", t.String(), "bytes", len(image))
	return &shot, nil
}
