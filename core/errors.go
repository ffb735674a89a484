package core

import "errors"

var (
	// ErrSiteNotFound indicates a requested study site does not exist.
	ErrSiteNotFound = errors.New("site not found")
	// ErrSiteExists indicates a site ID was registered twice.
	ErrSiteExists = errors.New("site already exists")
	// ErrSpawnerNotFound indicates a requested spawner does not exist.
	ErrSpawnerNotFound = errors.New("spawner not found")
	// ErrMissingTemplate indicates a spawner has no agent template to build from.
	ErrMissingTemplate = errors.New("spawner has no agent template")
	// ErrEmptyRoute indicates a shuttle was configured without waypoints.
	ErrEmptyRoute = errors.New("shuttle route has no waypoints")
	// ErrPlacementFailed indicates the navigator could not place a new agent.
	ErrPlacementFailed = errors.New("agent placement failed")
	// ErrSessionNotRunning indicates an operation that needs a live session.
	ErrSessionNotRunning = errors.New("session not running")
	// ErrSessionRunning indicates a session is already in progress.
	ErrSessionRunning = errors.New("session already running")
)
