package websocket

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ChannelState is the client-facing delivery mode.
type ChannelState int

const (
	// StateConnected: the push channel is live.
	StateConnected ChannelState = iota
	// StateReconnecting: the channel dropped; reconnect attempts run with
	// randomized exponential backoff.
	StateReconnecting
	// StatePolling: too many consecutive failures; the contract degrades
	// to fixed-interval polling until a reconnect succeeds.
	StatePolling
	// StateSuspended: the client is not visible; all activity pauses.
	StateSuspended
)

func (s ChannelState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StatePolling:
		return "polling"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// FallbackPolicy fixes the thresholds of the degradation behavior.
type FallbackPolicy struct {
	// FailureThreshold is the number of consecutive failed connection
	// attempts after which the contract switches to polling.
	FailureThreshold int
	// PollInterval is the fixed polling cadence in degraded mode.
	PollInterval time.Duration
	// MaxReconnectDelay bounds the exponential backoff between attempts.
	MaxReconnectDelay time.Duration
}

// DefaultFallbackPolicy mirrors the documented client contract: polling
// after 5 consecutive failures, every 10 seconds.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		FailureThreshold:  5,
		PollInterval:      10 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// FallbackController is the explicit state machine behind the push-or-poll
// duality. Transitions fire on failure counts and visibility changes, so
// the logic is testable without timers or sockets.
type FallbackController struct {
	mu       sync.Mutex
	policy   FallbackPolicy
	state    ChannelState
	failures int
	visible  bool
	backoff  *backoff.ExponentialBackOff
}

func NewFallbackController(policy FallbackPolicy) *FallbackController {
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = DefaultFallbackPolicy().FailureThreshold
	}
	if policy.PollInterval <= 0 {
		policy.PollInterval = DefaultFallbackPolicy().PollInterval
	}
	if policy.MaxReconnectDelay <= 0 {
		policy.MaxReconnectDelay = DefaultFallbackPolicy().MaxReconnectDelay
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = policy.MaxReconnectDelay
	b.MaxElapsedTime = 0 // retry indefinitely

	return &FallbackController{
		policy:  policy,
		state:   StateReconnecting,
		visible: true,
		backoff: b,
	}
}

// State returns the current delivery mode.
func (c *FallbackController) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnConnected records a successful (re)connection: the failure count and
// backoff reset and pushes resume.
func (c *FallbackController) OnConnected() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.backoff.Reset()
	if c.state != StateSuspended {
		c.state = StateConnected
	}
	return c.state
}

// OnFailure records a failed connection attempt or a dropped channel.
// Crossing the threshold flips the contract to polling.
func (c *FallbackController) OnFailure() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSuspended {
		return c.state
	}

	c.failures++
	if c.failures >= c.policy.FailureThreshold {
		c.state = StatePolling
	} else {
		c.state = StateReconnecting
	}
	return c.state
}

// SetVisible pauses the machine entirely while the client is hidden and
// resumes with a fresh reconnect attempt when it becomes visible again.
func (c *FallbackController) SetVisible(visible bool) ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visible == visible {
		return c.state
	}
	c.visible = visible

	if !visible {
		c.state = StateSuspended
		return c.state
	}

	c.failures = 0
	c.backoff.Reset()
	c.state = StateReconnecting
	return c.state
}

// NextDelay returns how long to wait before the next action in the current
// state: a randomized, bounded backoff while reconnecting, the fixed poll
// interval while polling, and no action at all while suspended.
func (c *FallbackController) NextDelay() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReconnecting:
		return c.backoff.NextBackOff(), true
	case StatePolling:
		return c.policy.PollInterval, true
	case StateConnected:
		return 0, false
	default:
		return 0, false
	}
}

// Failures exposes the consecutive failure count.
func (c *FallbackController) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
