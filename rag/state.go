package rag

// State is a step of the query state machine.
type State int

const (
	StateCheckCache State = iota
	StateSearch
	StateSimpleSearchFallback
	StateSynthesizeAnswer
	StateFallbackAnswer
	StateMinimalFallback
	StateStoreCache
	StateReturn
)

func (s State) String() string {
	switch s {
	case StateCheckCache:
		return "CHECK_CACHE"
	case StateSearch:
		return "SEARCH"
	case StateSimpleSearchFallback:
		return "SIMPLE_SEARCH_FALLBACK"
	case StateSynthesizeAnswer:
		return "SYNTHESIZE_ANSWER"
	case StateFallbackAnswer:
		return "FALLBACK_ANSWER"
	case StateMinimalFallback:
		return "MINIMAL_FALLBACK"
	case StateStoreCache:
		return "STORE_CACHE"
	case StateReturn:
		return "RETURN"
	}
	return "UNKNOWN"
}

// recoverTo is where a state goes when it panics.
func (s State) recoverTo() State {
	switch s {
	case StateCheckCache:
		return StateSearch
	case StateSearch:
		return StateSimpleSearchFallback
	case StateSynthesizeAnswer:
		return StateFallbackAnswer
	case StateStoreCache, StateMinimalFallback:
		return StateReturn
	}
	return StateMinimalFallback
}
