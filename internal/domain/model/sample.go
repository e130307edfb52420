// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// TrackingState describes how confident the head tracker is in a sample.
type TrackingState string

const (
	TrackingNormal  TrackingState = "normal"
	TrackingLimited TrackingState = "limited"
	TrackingLost    TrackingState = "lost"
)

// Vec2 is a normalized 2D offset, each axis in -1..1.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Norm returns the euclidean length of v.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// HeadPoseSample is one reading from the head-tracking collaborator.
// Angles are in degrees.
type HeadPoseSample struct {
	Pitch         float64       `json:"pitch"`
	Yaw           float64       `json:"yaw"`
	Roll          float64       `json:"roll"`
	CenterOffset  Vec2          `json:"center_offset"`
	TrackingState TrackingState `json:"tracking_state"`
	Timestamp     time.Time     `json:"timestamp"`
}

// DeviceOrientationSample is one reading from the motion collaborator.
// Angles are in degrees.
type DeviceOrientationSample struct {
	Pitch     float64   `json:"pitch"`
	Roll      float64   `json:"roll"`
	Yaw       float64   `json:"yaw"`
	Tilt      float64   `json:"tilt"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageHandle refers to a captured image owned by the camera collaborator.
type ImageHandle struct {
	ID  string `json:"id"`
	URI string `json:"uri,omitempty"`
}

// IsZero reports whether the handle is unset.
func (h ImageHandle) IsZero() bool {
	return h.ID == "" && h.URI == ""
}
