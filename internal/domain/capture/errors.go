package capture

import "errors"

// Sentinel kinds for orchestrator errors.
var (
	ErrFaceNotDetected = errors.New("face not detected")
	ErrCaptureInFlight = errors.New("capture already in progress")
	ErrSessionComplete = errors.New("session complete")
	ErrSessionActive   = errors.New("session already started")
	ErrNotStarted      = errors.New("session not started")
	ErrPaused          = errors.New("session paused")
	ErrNotPaused       = errors.New("session not paused")
	ErrStaleCapture    = errors.New("stale capture result")
	ErrEmptyImage      = errors.New("camera returned an empty image handle")
)

// userMessages holds the text shown when an operation is refused.
var userMessages = map[error]string{ //nolint:gochecknoglobals // immutable lookup table
	ErrFaceNotDetected: "Position your face in the frame before capturing",
	ErrCaptureInFlight: "Hold still, a photo is being taken",
	ErrSessionComplete: "All angles are captured",
	ErrPaused:          "Capture is paused",
	ErrNotStarted:      "Start a session first",
}

// UserMessage returns the user-facing text for a refusal, or "" if none.
func UserMessage(err error) string {
	for sentinel, msg := range userMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return ""
}
