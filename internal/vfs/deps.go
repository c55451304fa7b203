package vfs

import (
	"golang.org/x/sync/semaphore"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
)

// Deps bundles the process-wide collaborators every tree node needs, built
// once at mount time and threaded through by pointer rather than kept as
// package globals.
type Deps struct {
	Session *backend.Session
	Sem     *semaphore.Weighted
	Cfg     config.Config
	Locks   *LockManager
}
