package strategy

import (
	"errors"
	"fmt"

	"orb-lab/internal/domain"
)

// ErrUnknownVariant is returned for an entry rule or stop mode without an implementation.
var ErrUnknownVariant = errors.New("unknown strategy variant")

// FromSpec creates the Strategy for a validated candidate spec.
// The entry rule and stop mode are bound once here, never looked up per date.
func FromSpec(spec domain.CandidateSpec) (Strategy, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var entry entryRule
	switch spec.EntryRule {
	case domain.EntryCloseBreak:
		entry = closeBreakEntry
	case domain.EntryNextOpen:
		entry = nextOpenEntry
	default:
		return nil, fmt.Errorf("%w: entry rule %q", ErrUnknownVariant, spec.EntryRule)
	}

	var stop stopRule
	switch spec.StopMode {
	case domain.StopHalf:
		stop = halfStop
	case domain.StopFull:
		stop = fullStop
	default:
		return nil, fmt.Errorf("%w: stop mode %q", ErrUnknownVariant, spec.StopMode)
	}

	return NewORBStrategy(spec, entry, stop), nil
}
