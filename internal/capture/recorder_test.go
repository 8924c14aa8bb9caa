package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/khanglvm/monitome/internal/storage"
)

type fakeGrabber struct {
	data []byte
	err  error
}

func (g *fakeGrabber) Grab(ctx context.Context) ([]byte, error) {
	return g.data, g.err
}

type memStore struct {
	mu    sync.Mutex
	shots []storage.Screenshot
	err   error
}

func (s *memStore) Append(ctx context.Context, shot *storage.Screenshot, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	shot.Path = "/tmp/" + shot.ID + ".png"
	s.shots = append(s.shots, *shot)
	return nil
}

func TestRecorder_CaptureNow(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(&fakeGrabber{data: []byte("png")}, StaticPermissions{Capture: true}, store, nil)

	shot, err := rec.CaptureNow(context.Background(), EventTrigger("app switch: Safari"))
	if err != nil {
		t.Fatalf("CaptureNow failed: %v", err)
	}
	if len(shot.ID) != 26 {
		t.Errorf("expected a ULID id, got %q", shot.ID)
	}
	if shot.Trigger != "event: app switch: Safari" {
		t.Errorf("unexpected trigger %q", shot.Trigger)
	}
	if shot.Path == "" {
		t.Error("expected path filled in by store")
	}
	if len(store.shots) != 1 {
		t.Errorf("expected 1 stored shot, got %d", len(store.shots))
	}
}

func TestRecorder_Errors(t *testing.T) {
	writeErr := fmt.Errorf("%w: disk full", storage.ErrWriteFailed)

	tests := []struct {
		name    string
		grabber *fakeGrabber
		perms   StaticPermissions
		store   *memStore
		want    error
	}{
		{
			name:    "permission denied",
			grabber: &fakeGrabber{data: []byte("png")},
			perms:   StaticPermissions{Capture: false, Accessibility: true},
			store:   &memStore{},
			want:    ErrPermissionDenied,
		},
		{
			name:    "grab error",
			grabber: &fakeGrabber{err: errors.New("display asleep")},
			perms:   StaticPermissions{Capture: true},
			store:   &memStore{},
			want:    ErrCaptureFailed,
		},
		{
			name:    "empty image",
			grabber: &fakeGrabber{},
			perms:   StaticPermissions{Capture: true},
			store:   &memStore{},
			want:    ErrCaptureFailed,
		},
		{
			name:    "storage write failed",
			grabber: &fakeGrabber{data: []byte("png")},
			perms:   StaticPermissions{Capture: true},
			store:   &memStore{err: writeErr},
			want:    storage.ErrWriteFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecorder(tt.grabber, tt.perms, tt.store, nil)
			_, err := rec.CaptureNow(context.Background(), ManualTrigger())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if len(tt.store.shots) != 0 {
				t.Error("failed capture must not be stored")
			}
		})
	}
}

func TestRecorder_PermissionDeniedIsPerAttempt(t *testing.T) {
	perms := &switchPerms{}
	rec := NewRecorder(&fakeGrabber{data: []byte("png")}, perms, &memStore{}, nil)

	if _, err := rec.CaptureNow(context.Background(), PeriodicTrigger()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	perms.granted = true
	if _, err := rec.CaptureNow(context.Background(), PeriodicTrigger()); err != nil {
		t.Fatalf("expected next attempt to succeed, got %v", err)
	}
}

func TestRecorder_IDsAreSortable(t *testing.T) {
	rec := NewRecorder(&fakeGrabber{data: []byte("png")}, StaticPermissions{Capture: true}, &memStore{}, nil)

	var ids []string
	for i := 0; i < 50; i++ {
		shot, err := rec.CaptureNow(context.Background(), PeriodicTrigger())
		if err != nil {
			t.Fatalf("CaptureNow failed: %v", err)
		}
		ids = append(ids, shot.ID)
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("expected monotonically increasing ids")
	}
}

type switchPerms struct{ granted bool }

func (p *switchPerms) CaptureGranted() bool       { return p.granted }
func (p *switchPerms) AccessibilityGranted() bool { return true }
