// Package debounce coalesces bursts of calls into a single execution.
//
// Each Call restarts the quiet-period timer. When the timer fires, the
// wrapped function runs once with the argument of the most recent call,
// and every caller of that window receives its result or error.
// Executions of one Debouncer never overlap: a window that closes while
// the previous execution is still running starts only after it finishes.
//
//	search := debounce.New(func(ctx context.Context, q string) ([]Vehicle, error) {
//	    return fetch.JSON[[]Vehicle](ctx, fetcher, fetch.Get("/vehicles?q="+url.QueryEscape(q)))
//	}, 300*time.Millisecond)
//	defer search.Stop()
//
//	vehicles, err := search.Call(ctx, "swift")
package debounce
