//go:build linux
// +build linux

package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func firstCPU(set *unix.CPUSet) int {
	for i := 0; i < 1024; i++ {
		if set.IsSet(i) {
			return i
		}
	}
	return -1
}

func TestPinWorker(t *testing.T) {
	var orig unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &orig))
	cpu := firstCPU(&orig)
	if cpu < 0 {
		t.Skip("no usable cpu in affinity mask")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		unlock, err := PinWorker(cpu)
		defer unlock()
		if err != nil {
			t.Logf("pinning unavailable: %v", err)
			return
		}
		var got unix.CPUSet
		assert.NoError(t, unix.SchedGetaffinity(0, &got))
		assert.Equal(t, 1, got.Count())
	}()
	<-done
}

func TestPinWorkerRestoresMaskOnRelease(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Hold our own lock so the thread stays ours after PinWorker's
		// release and its mask can be inspected.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var orig unix.CPUSet
		if !assert.NoError(t, unix.SchedGetaffinity(0, &orig)) {
			return
		}
		cpu := firstCPU(&orig)
		if cpu < 0 {
			t.Log("no usable cpu in affinity mask")
			return
		}
		release, err := PinWorker(cpu)
		if err != nil {
			t.Logf("pinning unavailable: %v", err)
			release()
			return
		}
		release()

		var after unix.CPUSet
		assert.NoError(t, unix.SchedGetaffinity(0, &after))
		assert.Equal(t, orig, after)
		assert.Equal(t, orig.Count(), after.Count())
	}()
	<-done
}
