package history

import "github.com/hazyhaar/pricewatch/history/internal/store"

// Entry is a persisted price point.
type Entry = store.Entry
