package paychan

import (
	"github.com/xraph/paychan/store"
	"github.com/xraph/paychan/types"
)

// ChannelFilter is re-exported from the store package so callers of
// ListChannels don't have to import it.
type ChannelFilter = store.ChannelFilter

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	Drops = types.Drops
	USD   = types.USD
	Zero  = types.Zero
	Sum   = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
