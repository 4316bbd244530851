package selectorstore

import "github.com/hazyhaar/pricewatch/selectorstore/internal/store"

// Re-exported types from internal/store.
type (
	LearnedSelector  = store.Selector
	LeaderboardEntry = store.LeaderboardEntry
)
