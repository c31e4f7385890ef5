package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskmaster/syncserver/internal/serverconfig"
)

func testConfig() serverconfig.ThrottleConfig {
	return serverconfig.ThrottleConfig{
		SyncPush:           serverconfig.ScopeLimit{RatePerSecond: 1, Burst: 2},
		SyncPull:           serverconfig.ScopeLimit{RatePerSecond: 100, Burst: 100},
		ConflictResolution: serverconfig.ScopeLimit{RatePerSecond: 1, Burst: 1},
	}
}

func TestLimiter_AllowsUpToBurstThenBlocks(t *testing.T) {
	l := New(testConfig(), nil)

	assert.True(t, l.Allow(ScopeSyncPush, "user-1"))
	assert.True(t, l.Allow(ScopeSyncPush, "user-1"))
	assert.False(t, l.Allow(ScopeSyncPush, "user-1"))
}

func TestLimiter_DistinctCallersHaveIndependentBuckets(t *testing.T) {
	l := New(testConfig(), nil)

	assert.True(t, l.Allow(ScopeConflictResolution, "user-1"))
	assert.False(t, l.Allow(ScopeConflictResolution, "user-1"))
	assert.True(t, l.Allow(ScopeConflictResolution, "user-2"))
}

func TestLimiter_DistinctScopesHaveIndependentBuckets(t *testing.T) {
	l := New(testConfig(), nil)

	assert.True(t, l.Allow(ScopeConflictResolution, "user-1"))
	assert.False(t, l.Allow(ScopeConflictResolution, "user-1"))
	assert.True(t, l.Allow(ScopeSyncPull, "user-1"))
}

func TestLimiter_RetryAfterIsPositiveWhenExhausted(t *testing.T) {
	l := New(testConfig(), nil)

	l.Allow(ScopeConflictResolution, "user-1")
	assert.Greater(t, l.RetryAfter(ScopeConflictResolution, "user-1").Nanoseconds(), int64(0))
}
