package model

import "time"

// FeedbackKind enumerates the discrete feedback notifications.
type FeedbackKind string

const (
	FeedbackProximity FeedbackKind = "proximity"
	FeedbackLocked    FeedbackKind = "locked"
	FeedbackCountdown FeedbackKind = "countdown"
	FeedbackCaptured  FeedbackKind = "captured"
	FeedbackError     FeedbackKind = "error"
)

// AbortReason explains why a countdown or capture was abandoned.
type AbortReason string

const (
	AbortNone              AbortReason = ""
	AbortValidationLost    AbortReason = "validation_lost"
	AbortExcessiveMovement AbortReason = "excessive_movement"
	AbortCaptureFailed     AbortReason = "capture_failed"
	AbortFaceNotDetected   AbortReason = "face_not_detected"
)

// FeedbackEvent is a fire-and-forget notification for audio, haptic and UI layers.
type FeedbackEvent struct {
	Kind     FeedbackKind `json:"kind"`
	Angle    int          `json:"angle"`
	Progress float64      `json:"progress,omitempty"`
	Count    int          `json:"count,omitempty"`
	Reason   AbortReason  `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
	At       time.Time    `json:"at"`
}

// CaptureMode records how a capture was triggered.
type CaptureMode string

const (
	CaptureAuto   CaptureMode = "auto"
	CaptureManual CaptureMode = "manual"
)
