package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// maxJobsPerCheckpoint bounds one microtask checkpoint so a page that keeps
// re-queuing promise jobs cannot wedge the loop.
const maxJobsPerCheckpoint = 100000

// engineHandle is the C runtime pointer and thread state behind a VM. The
// Go wrapper keeps both unexported and never drains the job queue itself.
type engineHandle struct {
	rt  uintptr
	tls *libc.TLS
}

// drainJobs executes queued promise jobs until the queue is empty, a job
// fails, or the checkpoint bound is hit. It returns the number of jobs run.
func drainJobs(vm *quickjs.VM) int {
	h, ok := handleOf(vm)
	if !ok {
		return 0
	}
	n := 0
	for n < maxJobsPerCheckpoint {
		if lib.XJS_ExecutePendingJob(h.tls, h.rt, 0) <= 0 {
			break
		}
		n++
	}
	return n
}

// handleOf digs the engine handle out of vm. It depends on the layout of
// modernc.org/quickjs v0.17.x, where VM holds a *runtime whose fields are
// cRuntime uintptr and tls *libc.TLS.
func handleOf(vm *quickjs.VM) (engineHandle, bool) {
	if vm == nil {
		return engineHandle{}, false
	}
	field := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !field.IsValid() || field.Kind() != reflect.Pointer || field.IsNil() {
		return engineHandle{}, false
	}
	inner := reflect.NewAt(field.Type().Elem(), unsafe.Pointer(field.Pointer())).Elem()

	rt := inner.FieldByName("cRuntime")
	tls := inner.FieldByName("tls")
	if !rt.IsValid() || !tls.IsValid() || tls.IsNil() {
		return engineHandle{}, false
	}
	return engineHandle{
		rt:  uintptr(rt.Uint()),
		tls: (*libc.TLS)(unsafe.Pointer(tls.Pointer())),
	}, true
}
