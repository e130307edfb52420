// Package angle holds the fixed catalog of capture angles and their tolerances.
package angle

import (
	"errors"
	"fmt"
)

// Index identifies an angle in capture order.
type Index int

// Capture order. Complete is one past the last angle and marks a finished session.
const (
	Front Index = iota
	RightProfile
	LeftProfile
	Vertex
	Donor

	Complete
)

// Count is the number of angles in a session.
const Count = int(Complete)

// ErrInvalidAngle is returned for indexes outside 0..Count-1.
var ErrInvalidAngle = errors.New("invalid angle")

// Spec describes the target pose and tolerances for one angle.
// Angles are in degrees, centering is in normalized frame units.
type Spec struct {
	Index                Index
	Name                 string
	Instruction          string
	TargetPitch          float64
	TargetYaw            float64
	HasTargetYaw         bool
	PitchTolerance       float64
	YawTolerance         float64
	RequiresFaceOnScreen bool
	CenteringMaxOffset   float64
}

// catalog is ordered by Index. Profile yaw is relative to the camera: the
// user turns the head so the named side faces the lens.
var catalog = [Count]Spec{ //nolint:gochecknoglobals // immutable lookup table
	{
		Index:                Front,
		Name:                 "front",
		Instruction:          "Look straight at the camera",
		TargetPitch:          0,
		TargetYaw:            0,
		HasTargetYaw:         true,
		PitchTolerance:       15,
		YawTolerance:         15,
		RequiresFaceOnScreen: true,
		CenteringMaxOffset:   0.15,
	},
	{
		Index:                RightProfile,
		Name:                 "right",
		Instruction:          "Turn your head so your right side faces the camera",
		TargetPitch:          0,
		TargetYaw:            90,
		HasTargetYaw:         true,
		PitchTolerance:       15,
		YawTolerance:         15,
		RequiresFaceOnScreen: true,
		CenteringMaxOffset:   0.30,
	},
	{
		Index:                LeftProfile,
		Name:                 "left",
		Instruction:          "Turn your head so your left side faces the camera",
		TargetPitch:          0,
		TargetYaw:            -90,
		HasTargetYaw:         true,
		PitchTolerance:       15,
		YawTolerance:         15,
		RequiresFaceOnScreen: true,
		CenteringMaxOffset:   0.30,
	},
	{
		Index:          Vertex,
		Name:           "vertex",
		Instruction:    "Hold the phone flat above your head, camera facing down",
		TargetPitch:    90,
		PitchTolerance: 20,
	},
	{
		Index:          Donor,
		Name:           "donor",
		Instruction:    "Hold the phone upright behind your head",
		TargetPitch:    0,
		PitchTolerance: 40,
	},
}

// Valid reports whether i names a capture angle.
func (i Index) Valid() bool {
	return i >= Front && i < Complete
}

// String returns the angle name, "complete" or a numeric fallback.
func (i Index) String() string {
	switch {
	case i.Valid():
		return catalog[i].Name
	case i == Complete:
		return "complete"
	default:
		return fmt.Sprintf("angle(%d)", int(i))
	}
}

// Next returns the following angle, or Complete after the last one.
func (i Index) Next() Index {
	if i >= Donor {
		return Complete
	}
	return i + 1
}

// Get returns the spec for i.
func Get(i Index) (Spec, error) {
	if !i.Valid() {
		return Spec{}, fmt.Errorf("%w: %d", ErrInvalidAngle, int(i))
	}
	return catalog[i], nil
}

// MustGet is Get for indexes already known to be valid.
func MustGet(i Index) Spec {
	s, err := Get(i)
	if err != nil {
		panic(err)
	}
	return s
}

// All returns a copy of the catalog in capture order.
func All() []Spec {
	out := make([]Spec, Count)
	copy(out, catalog[:])
	return out
}

// Parse resolves an angle by name or decimal index.
func Parse(s string) (Index, error) {
	for _, spec := range catalog {
		if spec.Name == s {
			return spec.Index, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprint(n) == s {
		if idx := Index(n); idx.Valid() {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAngle, s)
}
