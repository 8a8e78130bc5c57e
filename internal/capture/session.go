// Package capture models the short-lived state between a device trigger and
// the extraction handoff: a press-and-hold voice recording or a one-shot
// camera capture.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voiceledger/internal/extract"
)

type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// Source tags which trigger produced the media.
type Source string

const (
	SourceVoice   Source = "voice"
	SourceReceipt Source = "receipt"
)

var (
	// ErrPermissionDenied is surfaced explicitly rather than silently
	// aborting the capture attempt.
	ErrPermissionDenied = errors.New("device permission denied")
	// ErrCaptureInFlight rejects a second trigger while one is running.
	ErrCaptureInFlight = errors.New("capture already in flight")
	// ErrNotRecording means press-out arrived without a press-in.
	ErrNotRecording = errors.New("no recording in progress")
)

// Device ports. The core treats microphone and camera as collaborators;
// adapters bridge real device I/O (or an HTTP upload) to these.
type (
	Microphone interface {
		RequestPermission(ctx context.Context) (bool, error)
		Open(ctx context.Context) (Stream, error)
	}

	// Stream is an open audio input stream. Stop ends the recording and
	// yields the captured clip, base64-encoded.
	Stream interface {
		Stop(ctx context.Context) (extract.Media, error)
	}

	Camera interface {
		RequestPermission(ctx context.Context) (bool, error)
		Capture(ctx context.Context) (Photo, error)
	}
)

// Photo is a camera result; a cancelled capture carries no media.
type Photo struct {
	Cancelled bool
	Media     extract.Media
}

// Handler receives captured media once a capture settles.
type Handler func(ctx context.Context, media extract.Media, source Source) error

// Session is the capture state machine: idle -> recording -> processing ->
// idle for voice, idle -> processing -> idle for camera. Exactly one
// capture may be in flight; concurrent triggers are rejected.
type Session struct {
	mic    Microphone
	camera Camera
	handle Handler

	mu     sync.Mutex
	state  State
	stream Stream
}

func NewSession(mic Microphone, camera Camera, handle Handler) *Session {
	return &Session{mic: mic, camera: camera, handle: handle, state: StateIdle}
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PressIn acquires microphone permission and opens the input stream.
// The session stays idle when permission is denied.
func (s *Session) PressIn(ctx context.Context) error {
	if err := s.transition(StateIdle, StateRecording); err != nil {
		return err
	}

	granted, err := s.mic.RequestPermission(ctx)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("microphone permission: %w", err)
	}
	if !granted {
		s.setState(StateIdle)
		return fmt.Errorf("microphone: %w", ErrPermissionDenied)
	}

	stream, err := s.mic.Open(ctx)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("open audio stream: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	return nil
}

// PressOut stops the stream, reads the clip and hands it off. The session
// returns to idle once the handler settles, success or failure.
func (s *Session) PressOut(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	stream := s.stream
	s.stream = nil
	s.state = StateProcessing
	s.mu.Unlock()

	defer s.setState(StateIdle)

	clip, err := stream.Stop(ctx)
	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	return s.handle(ctx, clip, SourceVoice)
}

// ScanReceipt acquires camera permission, invokes capture and hands the
// still image off unless the user cancelled.
func (s *Session) ScanReceipt(ctx context.Context) error {
	if err := s.transition(StateIdle, StateProcessing); err != nil {
		return err
	}
	defer s.setState(StateIdle)

	granted, err := s.camera.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("camera permission: %w", err)
	}
	if !granted {
		return fmt.Errorf("camera: %w", ErrPermissionDenied)
	}

	photo, err := s.camera.Capture(ctx)
	if err != nil {
		return fmt.Errorf("camera capture: %w", err)
	}
	if photo.Cancelled {
		return nil
	}
	return s.handle(ctx, photo.Media, SourceReceipt)
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return ErrCaptureInFlight
	}
	s.state = to
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
