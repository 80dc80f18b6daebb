package monitor

import "errors"

// Check failure taxonomy. Every failed check lands in exactly one of these;
// callers use errors.Is to branch.
var (
	// ErrNavigation covers timeouts and navigation failures while loading
	// the page.
	ErrNavigation = errors.New("monitor: navigation failed")
	// ErrBotBlocked means a bot wall intercepted the visit.
	ErrBotBlocked = errors.New("monitor: blocked by bot detection")
	// ErrExtractionFailed means no strategy produced a usable result.
	ErrExtractionFailed = errors.New("monitor: extraction failed")
	// ErrLowConfidence means the extraction was recorded but nothing was
	// trusted enough to commit.
	ErrLowConfidence = errors.New("monitor: extraction confidence too low")
	// ErrProductUnavailable marks a page that no longer sells the product.
	// A state, not a failure: checks keep running on the item.
	ErrProductUnavailable = errors.New("monitor: product unavailable")
)
