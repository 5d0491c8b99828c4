// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import "runtime"

// SetAffinity pins the current OS thread to a given logical CPU on supported
// platforms. The caller should hold runtime.LockOSThread.
// On unsupported platforms returns an error wrapping api.ErrNotSupported.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// PinWorker locks the calling goroutine to its OS thread and pins that thread
// to cpu slot (id mod NumCPU). The returned func puts back the thread's
// previous mask and then undoes the thread lock, so the runtime never
// schedules other goroutines on a pinned thread.
func PinWorker(id int) (func(), error) {
	runtime.LockOSThread()
	restore, err := saveAffinityPlatform()
	if err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	if err := SetAffinity(id % runtime.NumCPU()); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return func() {
		if err := restore(); err != nil {
			// Leave the thread locked: the goroutine exits with it and the
			// runtime discards the thread instead of reusing a pinned one.
			return
		}
		runtime.UnlockOSThread()
	}, nil
}
