package validation

import (
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
)

// Source names which sensor produced the orientation verdict.
type Source string

const (
	SourceNone   Source = "none"
	SourceHead   Source = "head_pose"
	SourceDevice Source = "device"
)

// Hint names the largest correction the user should make.
type Hint string

const (
	HintNone      Hint = ""
	HintShowFace  Hint = "show_face"
	HintCenter    Hint = "center"
	HintRaise     Hint = "raise"
	HintLower     Hint = "lower"
	HintTurnLeft  Hint = "turn_left"
	HintTurnRight Hint = "turn_right"
	HintNoSensor  Hint = "no_sensor"
)

// Message returns a short user-facing sentence for the hint.
func (h Hint) Message() string {
	switch h {
	case HintShowFace:
		return "Bring your face into the frame"
	case HintCenter:
		return "Center your face in the frame"
	case HintRaise:
		return "Raise the camera a little"
	case HintLower:
		return "Lower the camera a little"
	case HintTurnLeft:
		return "Turn a little to the left"
	case HintTurnRight:
		return "Turn a little to the right"
	case HintNoSensor:
		return "Motion sensor not ready"
	default:
		return ""
	}
}

// OrientationValidation is the pitch/yaw part of a verdict. Yaw fields are
// only meaningful when HasYaw is set.
type OrientationValidation struct {
	Status       Status  `json:"status"`
	Source       Source  `json:"source"`
	CurrentPitch float64 `json:"current_pitch"`
	TargetPitch  float64 `json:"target_pitch"`
	PitchError   float64 `json:"pitch_error"`
	HasYaw       bool    `json:"has_yaw"`
	CurrentYaw   float64 `json:"current_yaw,omitempty"`
	TargetYaw    float64 `json:"target_yaw,omitempty"`
	YawError     float64 `json:"yaw_error,omitempty"`
}

// DetectionValidation is the face presence and centering part of a verdict.
type DetectionValidation struct {
	Status         Status     `json:"status"`
	Required       bool       `json:"required"`
	IsDetected     bool       `json:"is_detected"`
	CenterOffset   model.Vec2 `json:"center_offset"`
	CenterDistance float64    `json:"center_distance"`
}

// PoseValidation is the full verdict for one tick.
type PoseValidation struct {
	Angle             angle.Index           `json:"angle"`
	Orientation       OrientationValidation `json:"orientation"`
	Detection         DetectionValidation   `json:"detection"`
	IsStable          bool                  `json:"is_stable"`
	StabilityStart    time.Time             `json:"stability_start"`
	StabilityDuration time.Duration         `json:"stability_duration"`
	Progress          float64               `json:"progress"`
	Hint              Hint                  `json:"hint,omitempty"`
	EvaluatedAt       time.Time             `json:"evaluated_at"`
}

// CombinedValid reports orientation and detection both valid, ignoring stability.
func (p PoseValidation) CombinedValid() bool {
	return p.Orientation.Status.IsValid() && p.Detection.Status.IsValid()
}

// IsReadyForCapture requires both parts valid and the pose stable.
func (p PoseValidation) IsReadyForCapture() bool {
	return p.CombinedValid() && p.IsStable
}

// Status folds the verdict into one value for UI: Locked when ready, Valid
// when both parts are valid, otherwise the weaker of the two parts.
func (p PoseValidation) Status() Status {
	switch {
	case p.IsReadyForCapture():
		return Locked()
	case p.CombinedValid():
		return Valid()
	case p.Detection.Status.Less(p.Orientation.Status):
		return p.Detection.Status
	default:
		return p.Orientation.Status
	}
}
