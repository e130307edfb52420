package simulate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
)

// ErrUnknownScenario is returned by Scenario for names it does not know.
var ErrUnknownScenario = errors.New("unknown scenario")

// Script maps each angle to the timeline played while that angle is current.
// The timeline restarts whenever the current angle changes.
type Script map[angle.Index]Timeline

// For returns the timeline for a, or a single Away segment when the script
// has none.
func (s Script) For(a angle.Index) Timeline {
	if t, ok := s[a]; ok && len(t) > 0 {
		return t
	}
	return Timeline{Away(time.Second)}
}

// Steady returns a script where the user settles into each pose after
// settle and holds it with a light wobble.
func Steady(settle time.Duration) Script {
	s := make(Script, angle.Count)
	for i := 0; i < angle.Count; i++ {
		a := angle.Index(i)
		hold := Hold(a, time.Second)
		hold.Wobble = 1
		s[a] = Timeline{Away(settle), hold}
	}
	return s
}

// Flinch is Steady except the user glances away on the front angle after
// hold, which aborts the first countdown.
func Flinch(settle, hold time.Duration) Script {
	s := Steady(settle)
	s[angle.Front] = Timeline{
		Away(settle),
		Hold(angle.Front, hold),
		Turn(angle.Front, 25, 400*time.Millisecond),
		Hold(angle.Front, time.Second),
	}
	return s
}

// Wander is Steady except the user fidgets on the left profile, restarting
// the stability window twice before settling.
func Wander(settle time.Duration) Script {
	s := Steady(settle)
	s[angle.LeftProfile] = Timeline{
		Away(settle),
		Hold(angle.LeftProfile, 700*time.Millisecond),
		Turn(angle.LeftProfile, 12, 300*time.Millisecond),
		Hold(angle.LeftProfile, 700*time.Millisecond),
		Turn(angle.LeftProfile, -12, 300*time.Millisecond),
		Hold(angle.LeftProfile, time.Second),
	}
	return s
}

var scenarios = map[string]func(settle time.Duration) Script{ //nolint:gochecknoglobals // immutable lookup table
	"steady": Steady,
	"flinch": func(settle time.Duration) Script { return Flinch(settle, 1500*time.Millisecond) },
	"wander": Wander,
}

// Scenario returns the named script.
func Scenario(name string, settle time.Duration) (Script, error) {
	build, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownScenario, name, ScenarioNames())
	}
	return build(settle), nil
}

// ScenarioNames lists the known scenarios in alphabetical order.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
