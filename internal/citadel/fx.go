// Package citadel provides the BFF server for the campus marketplace's browser
// client.
//
// It holds each session's feed, forwards the rest of the marketplace to the
// backend, and serves the buyer/seller chat out of its own store.
package citadel

import (
	"go.uber.org/fx"

	"github.com/jdholdren/campusmart/internal/chat"
	"github.com/jdholdren/campusmart/internal/feed"
)

var Module = fx.Module("citadel",
	fx.Provide(
		chat.NewService,
		feed.NewBus,
		NewServer,
	),
)
