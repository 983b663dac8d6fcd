// Package history fetches room backlogs for the chat client.
package history

import (
	"context"
	"fmt"
	"slices"

	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// DefaultLimit is the number of backlog messages requested per room.
const DefaultLimit = 50

// Fetcher is the REST call behind a Loader. *api.Client implements it.
type Fetcher interface {
	RoomMessages(ctx context.Context, roomID string, limit int) ([]wire.Message, error)
}

// Loader loads room backlogs. Concurrent loads of the same room share one
// request.
type Loader struct {
	fetcher Fetcher
	limit   int
	group   singleflight.Group
}

// NewLoader returns a Loader requesting limit messages per room. A
// non-positive limit selects DefaultLimit.
func NewLoader(fetcher Fetcher, limit int) *Loader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Loader{fetcher: fetcher, limit: limit}
}

// LoadBacklog returns the most recent messages of roomID in server order.
// The shared request is detached from any single caller's cancellation; a
// caller whose ctx ends stops waiting without failing the others.
func (l *Loader) LoadBacklog(ctx context.Context, roomID string) ([]wire.Message, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(roomID, func() (any, error) {
		logger.Debugf("Loading backlog for room %s (limit %d)", roomID, l.limit)
		return l.fetcher.RoomMessages(fetchCtx, roomID, l.limit)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("load backlog for room %s: %w", roomID, ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("load backlog for room %s: %w", roomID, res.Err)
	}
	msgs, _ := res.Val.([]wire.Message)
	if res.Shared {
		// Callers own their slice.
		msgs = slices.Clone(msgs)
	}
	return msgs, nil
}
