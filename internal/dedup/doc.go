// Package dedup collapses concurrent identical fetches into one upstream
// call.
//
// A Group keeps at most one in-flight call per key. Callers that arrive
// while a call is pending wait for it and receive the same result or the
// same error. The registration is dropped when the call settles, whatever
// its outcome, so the next call for the key starts fresh.
//
// The shared call runs on a context detached from the cancellation of the
// caller that started it. A caller whose context ends stops waiting and
// gets its context error; the call itself runs to completion and its
// result still reaches the cache.
package dedup
