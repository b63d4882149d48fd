package gosync

import (
	"context"
	"fmt"
)

// Go runs task on its own goroutine, recovering any panic so a single
// faulty hook callback or background pump can't take the process down.
func Go(ctx context.Context, task func(ctx context.Context)) {
	go func(ctx context.Context, f func(ctx context.Context)) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Println("recovered panic in gosync.Go:", err)
			}
		}()
		f(ctx)
	}(ctx, task)
}
