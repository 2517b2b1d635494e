package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"dealflow/internal/models"
)

// ErrCircuitOpen 熔断器开启时拒绝请求
var ErrCircuitOpen = errors.New("task sink circuit open")

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // 正常
	StateOpen                                // 熔断
	StateHalfOpen                            // 试探
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	MaxFailures     int
	ResetTimeout    time.Duration
	HalfOpenMaxReqs int
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:     5,
		ResetTimeout:    60 * time.Second,
		HalfOpenMaxReqs: 3,
	}
}

// CircuitBreaker counts consecutive sink failures and short-circuits
// submissions while open.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	now          func() time.Time
	mu           sync.Mutex
	state        CircuitBreakerState
	failureCount int
	lastFailTime time.Time
	halfOpenReqs int
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.HalfOpenMaxReqs <= 0 {
		config.HalfOpenMaxReqs = def.HalfOpenMaxReqs
	}
	return &CircuitBreaker{config: config, now: time.Now, state: StateClosed}
}

// Allow 检查是否允许请求通过
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) > cb.config.ResetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenReqs = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenReqs < cb.config.HalfOpenMaxReqs {
			cb.halfOpenReqs++
			return true
		}
		return false
	default:
		return false
	}
}

// OnSuccess 记录成功
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenReqs = 0
}

// OnFailure 记录失败
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailTime = cb.now()
	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.halfOpenReqs = 0
	}
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 重置熔断器
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenReqs = 0
}

// Stats 获取熔断器统计信息
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"state":          cb.state.String(),
		"failure_count":  cb.failureCount,
		"last_fail_time": cb.lastFailTime,
		"max_failures":   cb.config.MaxFailures,
		"reset_timeout":  cb.config.ResetTimeout.String(),
	}
}

// BreakerSink guards a TaskSink with a CircuitBreaker. A duplicate-task
// answer counts as a healthy sink.
type BreakerSink struct {
	next    TaskSink
	breaker *CircuitBreaker
}

func NewBreakerSink(next TaskSink, breaker *CircuitBreaker) *BreakerSink {
	return &BreakerSink{next: next, breaker: breaker}
}

func (s *BreakerSink) CreateTask(ctx context.Context, req TaskCreationRequest) (*models.Task, error) {
	if !s.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	task, err := s.next.CreateTask(ctx, req)
	if err != nil && !errors.Is(err, ErrDuplicateAutomationTask) {
		s.breaker.OnFailure()
		return nil, err
	}
	s.breaker.OnSuccess()
	return task, err
}

// Breaker 返回底层熔断器（用于健康检查）
func (s *BreakerSink) Breaker() *CircuitBreaker {
	return s.breaker
}
