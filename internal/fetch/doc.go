// Package fetch implements cached HTTP fetches against the ReRide API.
//
// A Client answers a Request from the response cache when a valid entry
// exists under the request's key, and otherwise performs the HTTP call,
// stores the successful JSON payload, and returns it. Non-2xx responses
// and transport failures are returned as errors matching ErrNetworkFailure
// and are never cached.
//
// Keys are derived with Key, which normalizes query and header ordering so
// that identical logical requests share one cache entry.
//
// # Example Usage
//
//	client := fetch.NewClient(
//	    fetch.WithBaseURL("https://api.reride.example"),
//	    fetch.WithCache(c),
//	    fetch.WithLogger(logger),
//	)
//
//	body, err := client.Do(ctx, fetch.Get("/vehicles"), fetch.WithTTL(time.Minute))
//
//	vehicles, err := fetch.JSON[[]Vehicle](ctx, client, fetch.Get("/vehicles"))
package fetch
