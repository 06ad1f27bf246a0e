package main

import (
	"context"

	"github.com/pepperpark/mailcopy/internal/mailstore"
)

type terminator interface {
	Terminate() error
}

// terminateOnCancel force-closes the connections of the given stores when ctx
// is done, so a blocked fetch or append returns. Stores without a connection
// are left alone. The returned func stops the watch.
func terminateOnCancel(ctx context.Context, stores ...mailstore.Client) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		for _, s := range stores {
			if t, ok := s.(terminator); ok {
				_ = t.Terminate()
			}
		}
	})
}
