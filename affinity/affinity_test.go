// File: affinity/affinity_test.go
// Author: momentics <momentics@gmail.com>

package affinity

import "testing"

// TestSetAffinityCallsPlatformImplementation exercises the build-tagged
// setAffinityPlatform for whichever platform this test runs on. It does
// not assert success: a sandboxed or cgroup-restricted test runner may
// legitimately reject pinning to CPU 0, the same way it may reject it for
// a real Scheduler with PinHomeThread enabled. What matters here is that
// the call reaches the platform implementation and returns rather than
// panicking or hanging.
func TestSetAffinityCallsPlatformImplementation(t *testing.T) {
	err := SetAffinity(0)
	t.Logf("affinity.SetAffinity(0) = %v", err)
}
