// Package validation computes per-tick pose verdicts from head-pose and
// device-orientation samples.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind is the discriminant of Status.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindAdjusting
	KindValid
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindAdjusting:
		return "adjusting"
	case KindValid:
		return "valid"
	case KindLocked:
		return "locked"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Status is a tagged value: Invalid, Adjusting(progress), Valid or Locked.
// Progress only exists on Adjusting; build values with the constructors.
type Status struct {
	kind     Kind
	progress float64
}

// Invalid returns the Invalid status.
func Invalid() Status { return Status{kind: KindInvalid} }

// Adjusting returns Adjusting with progress clamped to 0..1.
func Adjusting(progress float64) Status {
	if math.IsNaN(progress) {
		progress = 0
	}
	return Status{kind: KindAdjusting, progress: math.Max(0, math.Min(1, progress))}
}

// Valid returns the Valid status.
func Valid() Status { return Status{kind: KindValid} }

// Locked returns the Locked status.
func Locked() Status { return Status{kind: KindLocked} }

// Kind returns the discriminant.
func (s Status) Kind() Kind { return s.kind }

// Progress returns the Adjusting payload; ok is false for every other kind.
func (s Status) Progress() (progress float64, ok bool) {
	if s.kind != KindAdjusting {
		return 0, false
	}
	return s.progress, true
}

// IsValid reports Valid or Locked.
func (s Status) IsValid() bool {
	return s.kind == KindValid || s.kind == KindLocked
}

// Rank orders statuses for UI purposes: Invalid < Adjusting < Valid < Locked.
func (s Status) Rank() int { return int(s.kind) }

// Less reports whether s ranks below o.
func (s Status) Less(o Status) bool {
	if s.kind != o.kind {
		return s.kind < o.kind
	}
	return s.kind == KindAdjusting && s.progress < o.progress
}

func (s Status) String() string {
	if s.kind == KindAdjusting {
		return fmt.Sprintf("adjusting(%.2f)", s.progress)
	}
	return s.kind.String()
}

type statusJSON struct {
	Kind     string   `json:"kind"`
	Progress *float64 `json:"progress,omitempty"`
}

// MarshalJSON encodes {"kind":"adjusting","progress":0.4}; progress is omitted for other kinds.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{Kind: s.kind.String()}
	if p, ok := s.Progress(); ok {
		out.Progress = &p
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "invalid":
		*s = Invalid()
	case "adjusting":
		p := 0.0
		if in.Progress != nil {
			p = *in.Progress
		}
		*s = Adjusting(p)
	case "valid":
		*s = Valid()
	case "locked":
		*s = Locked()
	default:
		return fmt.Errorf("unknown validation status %q", in.Kind)
	}
	return nil
}
