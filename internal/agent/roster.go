package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/gridmesh/p2p-market/internal/env"
)

// Supported strategy names.
const (
	TypeZIC        = "zic"
	TypeSatisficer = "satisficer"
	TypeOptimizer  = "optimizer"
	TypeLearner    = "learner"
)

var validTypes = map[string]bool{
	TypeZIC:        true,
	TypeSatisficer: true,
	TypeOptimizer:  true,
	TypeLearner:    true,
}

// rosterRegex matches one roster entry: {strategy}:{count}
// Example: satisficer:4
var rosterRegex = regexp.MustCompile(`^([a-z]+):([0-9]+)$`)

var (
	ErrInvalidRoster = errors.New("agent: invalid roster entry")
	ErrInvalidType   = errors.New("agent: unsupported strategy type")
)

// RosterEntry is one parsed roster element.
type RosterEntry struct {
	Type  string
	Count int
}

// ParseRosterEntry parses and validates one "{strategy}:{count}" spec.
func ParseRosterEntry(spec string) (RosterEntry, error) {
	matches := rosterRegex.FindStringSubmatch(spec)
	if matches == nil {
		return RosterEntry{}, fmt.Errorf("%w: %q (expected {strategy}:{count})", ErrInvalidRoster, spec)
	}
	typ := matches[1]
	if !validTypes[typ] {
		return RosterEntry{}, fmt.Errorf("%w: %s", ErrInvalidType, typ)
	}
	count, err := strconv.Atoi(matches[2])
	if err != nil || count < 1 {
		return RosterEntry{}, fmt.Errorf("%w: count in %q", ErrInvalidRoster, spec)
	}
	return RosterEntry{Type: typ, Count: count}, nil
}

// BuildRoster instantiates the agents named by the specs, wiring each
// with the shared day profiles, a battery for every other agent, and a
// deterministic per-agent RNG seed. Agent ids are zero-padded so that
// ascending-id ordering equals creation order.
func BuildRoster(specs []string, seed int64) ([]Agent, error) {
	var entries []RosterEntry
	for _, s := range specs {
		e, err := ParseRosterEntry(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	load := env.DiurnalLoad(env.StepsPerDay)
	pv := env.ClearSkyPV(env.StepsPerDay)
	ev := env.EVCharging(env.StepsPerDay, 19*60/env.StepMinutes, 10)

	var agents []Agent
	n := 0
	for _, e := range entries {
		for i := 0; i < e.Count; i++ {
			id := fmt.Sprintf("%s_%03d", e.Type, n)
			a, p := newByType(e.Type, id, seed)
			p.Load = load
			// Alternate endowments so both sides of the market exist:
			// even agents have PV (sellers at midday), odd have an EV.
			if n%2 == 0 {
				p.PV = pv
			} else {
				p.EV = ev
			}
			if n%2 == 0 {
				p.Battery = env.NewBattery()
			}
			agents = append(agents, a)
			n++
		}
	}
	return agents, nil
}

func newByType(typ, id string, seed int64) (Agent, *Prosumer) {
	switch typ {
	case TypeSatisficer:
		a := NewSatisficer(id, seed)
		return a, a.Prosumer
	case TypeOptimizer:
		a := NewOptimizer(id, seed)
		return a, a.Prosumer
	case TypeLearner:
		a := NewLearner(id, seed)
		return a, a.Prosumer
	default:
		a := NewZIC(id, seed)
		return a, a.Prosumer
	}
}
