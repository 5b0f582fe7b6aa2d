package registry

import (
	"os"
	"syscall"
)

// processAlive reports whether pid refers to a live process, using the
// POSIX convention that signal 0 performs error checking without actually
// sending a signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM means the process exists but we lack permission to signal it —
	// still alive from our point of view.
	return err == syscall.EPERM
}
