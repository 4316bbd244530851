package scrape

import "fmt"

// State is a position in the escalation state machine:
//
//	NotStarted → HTTP → Browser → ProxyBrowser → VisionFallback → {Succeeded, Exhausted}
//
// A tier state is only entered when its tier is configured, allowed by the
// budget and eligible for the target.
type State int

const (
	StateNotStarted State = iota
	StateHTTP
	StateBrowser
	StateProxyBrowser
	StateVisionFallback
	StateSucceeded
	StateExhausted
)

var stateNames = [...]string{
	StateNotStarted:     "notStarted",
	StateHTTP:           "tierHTTP",
	StateBrowser:        "tierBrowser",
	StateProxyBrowser:   "tierProxyBrowser",
	StateVisionFallback: "tierVisionFallback",
	StateSucceeded:      "succeeded",
	StateExhausted:      "exhausted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("scrape: unknown state %q", b)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateExhausted }

func stateOf(t TierName) State {
	switch t {
	case TierHTTP:
		return StateHTTP
	case TierBrowser:
		return StateBrowser
	case TierProxyBrowser:
		return StateProxyBrowser
	case TierVisionFallback:
		return StateVisionFallback
	}
	return StateNotStarted
}
