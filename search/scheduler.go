package search

import (
	"carelink/contract"
	"time"
)

// wallScheduler backs the debounce with real timers. Tests swap in a
// virtual clock through the contract.Scheduler seam.
type wallScheduler struct{}

func NewWallScheduler() contract.Scheduler { return wallScheduler{} }

func (wallScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}
