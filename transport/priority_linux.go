//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// raisePriority moves the calling OS thread into SCHED_FIFO at p.realtime.
// Without CAP_SYS_NICE it settles for p.nice under the default policy. The
// caller must have locked its goroutine to the thread.
func raisePriority(p priority) error {
	attr := unix.SchedAttr{Policy: unix.SCHED_FIFO, Priority: uint32(p.realtime)}
	rtErr := unix.SchedSetAttr(0, &attr, 0)
	if rtErr == nil {
		return nil
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), p.nice); err != nil {
		return fmt.Errorf("sched_setattr: %v; setpriority: %w", rtErr, err)
	}
	return nil
}
