package browser

import "errors"

var (
	// ErrBrowserInit means the browser failed to launch or attach. Launch
	// timeouts are terminal; callers retry via a fresh connect, never here.
	ErrBrowserInit = errors.New("browser initialization failed")

	// ErrNavigation means the page failed to navigate to the target URL.
	ErrNavigation = errors.New("navigation failed")

	// ErrElementNotFound covers missing DOM elements and script results
	// whose shape does not match what the caller expects.
	ErrElementNotFound = errors.New("element not found")

	// ErrTimeout means a wait on the page exceeded its deadline.
	ErrTimeout = errors.New("connection timeout")
)
