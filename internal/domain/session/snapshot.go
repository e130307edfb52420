package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/posecap/internal/domain/angle"
)

// AngleStats pairs Stats with its angle for serialisation.
type AngleStats struct {
	Angle angle.Index `json:"angle"`
	Stats
}

// Snapshot is an exported copy of a Session used for persistence.
type Snapshot struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	CurrentAngle angle.Index  `json:"current_angle"`
	Results      []Result     `json:"results"`
	Stats        []AngleStats `json:"stats"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		CurrentAngle: s.current,
		Results:      make([]Result, 0, angle.Count),
		Stats:        make([]AngleStats, 0, angle.Count),
	}
	for i := range s.results {
		if s.results[i] != nil {
			snap.Results = append(snap.Results, *s.results[i])
		}
		snap.Stats = append(snap.Stats, AngleStats{Angle: angle.Index(i), Stats: s.stats[i]})
	}
	return snap
}

// Restore rebuilds a Session from snap. The current angle is derived from
// the results, not trusted from the snapshot.
func Restore(snap Snapshot) (*Session, error) {
	if _, err := uuid.Parse(snap.ID); err != nil {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidSnapshot, snap.ID)
	}
	s := &Session{id: snap.ID, createdAt: snap.CreatedAt}
	for _, r := range snap.Results {
		if err := s.AddResult(r); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
	}
	for _, st := range snap.Stats {
		if !st.Angle.Valid() {
			return nil, fmt.Errorf("%w: stats for %d", ErrInvalidSnapshot, int(st.Angle))
		}
		s.stats[st.Angle] = st.Stats
	}
	s.recompute()
	return s, nil
}
