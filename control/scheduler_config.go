// File: control/scheduler_config.go
// Author: momentics <momentics@gmail.com>
//
// Typed scheduler tunables layered on top of ConfigStore, the ambient
// configuration layer spec.md's core otherwise has no opinion on.

package control

// SchedulerConfig holds scheduler-wide tunables a host application may
// retune at runtime through the underlying ConfigStore's hot-reload path.
type SchedulerConfig struct {
	store *ConfigStore
}

const (
	keyDefaultRecvBuffer = "scheduler.recv_buffer_bytes"
	keyAcceptLogInterval = "scheduler.accept_log_interval"
	keyPinHomeThread     = "scheduler.pin_home_thread"
)

// NewSchedulerConfig returns a SchedulerConfig with corotask's defaults:
// a 4KiB default recv buffer hint for examples/tooling, accept-queue
// reporting every 1000 arrivals, and no CPU pinning.
func NewSchedulerConfig() *SchedulerConfig {
	store := NewConfigStore()
	store.SetConfig(map[string]any{
		keyDefaultRecvBuffer: 4096,
		keyAcceptLogInterval: 1000,
		keyPinHomeThread:     false,
	})
	return &SchedulerConfig{store: store}
}

// DefaultRecvBuffer returns the configured default recv buffer size. In
// this module only the scheduler's config-reload log line reads it.
func (c *SchedulerConfig) DefaultRecvBuffer() int {
	v, _ := c.store.GetSnapshot()[keyDefaultRecvBuffer].(int)
	if v <= 0 {
		return 4096
	}
	return v
}

// PinHomeThread reports whether the scheduler should pin its home OS
// thread to a CPU core via the affinity package.
func (c *SchedulerConfig) PinHomeThread() bool {
	v, _ := c.store.GetSnapshot()[keyPinHomeThread].(bool)
	return v
}

// SetPinHomeThread toggles whether the scheduler pins its home OS thread
// to CPU 0 via the affinity package. Must be set before the Scheduler is
// constructed; NewScheduler only reads it once, during setup.
func (c *SchedulerConfig) SetPinHomeThread(v bool) {
	c.Set(map[string]any{keyPinHomeThread: v})
}

// AcceptLogInterval returns how many listener arrival callbacks should
// elapse between log lines reporting listener queue depth. Task.Listen
// reads it once, when the listener is set up.
func (c *SchedulerConfig) AcceptLogInterval() int {
	v, _ := c.store.GetSnapshot()[keyAcceptLogInterval].(int)
	if v <= 0 {
		return 1000
	}
	return v
}

// Set updates one or more tunables and notifies any OnReload listeners.
func (c *SchedulerConfig) Set(values map[string]any) {
	c.store.SetConfig(values)
}

// OnReload registers a listener invoked whenever Set is called.
func (c *SchedulerConfig) OnReload(fn func()) {
	c.store.OnReload(fn)
}
