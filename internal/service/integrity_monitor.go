package service

import (
	"context"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/pkg/logger"
	"exam_proctor_backend/pkg/monitoring"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Trigger string

const (
	TriggerTimeout    Trigger = "timeout"
	TriggerFocusLost  Trigger = "focus_lost"
	TriggerVisibility Trigger = "visibility_hidden"
	TriggerFraud      Trigger = "fraud"
	TriggerManual     Trigger = "manual"
)

const (
	ReasonTimeExpired = "time expired"
	ReasonFocusLost   = "focus lost"
	ReasonSubmitted   = "submitted by candidate"
	// 客户端带了空白的违规原因
	ReasonUnspecified = "unspecified"
)

type MonitorState int32

const (
	StateIdle MonitorState = iota
	StateRunning
	StateTerminating
	StateTerminated
)

func (s MonitorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type MonitorEventType string

const (
	EventStarted    MonitorEventType = "STARTED"
	EventStatus     MonitorEventType = "STATUS"
	EventFraudAlert MonitorEventType = "FRAUD_ALERT"
	EventTerminated MonitorEventType = "TERMINATED"
	EventError      MonitorEventType = "ERROR"
)

// MonitorEvent 推送给考生端的事件
type MonitorEvent struct {
	Type             MonitorEventType  `json:"type"`
	RemainingSeconds int               `json:"remainingSeconds,omitempty"`
	Message          string            `json:"message,omitempty"`
	Trigger          Trigger           `json:"trigger,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	Result           *model.ExamResult `json:"result,omitempty"`
}

// SubmitFunc 终止时调用一次
type SubmitFunc func(ctx context.Context, answers model.ExamAnswers, fraudReason *string) (*model.ExamResult, error)

// FrameAnalyzer 单帧分析，失败时返回 Unavailable 的结果而不是 error
type FrameAnalyzer func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult

type MonitorConfig struct {
	Duration       time.Duration
	SampleInterval time.Duration
	FraudGrace     time.Duration
}

// Termination 胜出的触发源及提交结果
type Termination struct {
	Trigger Trigger
	Reason  string
	Result  *model.ExamResult
	Err     error
}

// IntegrityMonitor 倒计时、抽帧检测与焦点监听共用一个终止守卫：
// running -> terminating 只发生一次，之后的触发全部忽略
type IntegrityMonitor struct {
	cfg     MonitorConfig
	submit  SubmitFunc
	analyze FrameAnalyzer
	notify  func(MonitorEvent)

	state     atomic.Int32
	analyzing atomic.Bool

	mu      sync.Mutex
	answers model.ExamAnswers
	frame   []byte
	mime    string
	outcome Termination

	ctx  context.Context
	stop chan struct{}
	done chan struct{}
}

func NewIntegrityMonitor(cfg MonitorConfig, submit SubmitFunc, analyze FrameAnalyzer, notify func(MonitorEvent)) *IntegrityMonitor {
	if notify == nil {
		notify = func(MonitorEvent) {}
	}
	return &IntegrityMonitor{
		cfg:     cfg,
		submit:  submit,
		analyze: analyze,
		notify:  notify,
		ctx:     context.Background(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (m *IntegrityMonitor) State() MonitorState {
	return MonitorState(m.state.Load())
}

// Start ctx 结束视为考生断开：监控停止但不提交，会话仍可恢复
func (m *IntegrityMonitor) Start(ctx context.Context) bool {
	// 持锁切换状态，trigger 读 ctx 时必然看到这里的赋值
	m.mu.Lock()
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		m.mu.Unlock()
		return false
	}
	m.ctx = ctx
	m.mu.Unlock()

	m.notify(MonitorEvent{Type: EventStarted, RemainingSeconds: int(m.cfg.Duration.Seconds())})
	go m.run(ctx)
	return true
}

func (m *IntegrityMonitor) run(ctx context.Context) {
	duration := m.cfg.Duration
	if duration < 0 {
		duration = 0
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()

	interval := m.cfg.SampleInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			// 超时不算违规，按正常评分
			m.trigger(TriggerTimeout, ReasonTimeExpired, nil)
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// sample 上一帧仍在分析时跳过本次采样
func (m *IntegrityMonitor) sample(ctx context.Context) {
	if m.analyze == nil {
		return
	}

	if !m.analyzing.CompareAndSwap(false, true) {
		if m.hasFrame() {
			monitoring.SkippedSamples.Inc()
		}
		return
	}
	// 每帧只分析一次，没有新帧的 tick 直接跳过
	frame, mime := m.takeFrame()
	if frame == nil {
		m.analyzing.Store(false)
		return
	}

	go func() {
		defer m.analyzing.Store(false)

		result := m.analyze(ctx, frame, mime)
		if result == nil || m.State() != StateRunning {
			return
		}
		if result.Unavailable() {
			m.notify(MonitorEvent{Type: EventStatus, Message: result.Error})
			return
		}
		if !result.Fraud || result.Reason == nil {
			return
		}

		reason := *result.Reason
		m.notify(MonitorEvent{Type: EventFraudAlert, Reason: reason})

		// 给前端留出展示告警的时间
		if m.cfg.FraudGrace > 0 {
			grace := time.NewTimer(m.cfg.FraudGrace)
			defer grace.Stop()
			select {
			case <-grace.C:
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		m.trigger(TriggerFraud, reason, &reason)
	}()
}

func (m *IntegrityMonitor) FocusLost() bool {
	reason := ReasonFocusLost
	return m.trigger(TriggerFocusLost, reason, &reason)
}

func (m *IntegrityMonitor) VisibilityHidden() bool {
	reason := ReasonFocusLost
	return m.trigger(TriggerVisibility, reason, &reason)
}

// SubmitManual 考生主动交卷
func (m *IntegrityMonitor) SubmitManual(answers model.ExamAnswers) bool {
	m.UpdateAnswers(answers)
	return m.trigger(TriggerManual, ReasonSubmitted, nil)
}

// UpdateAnswers 考生作答进度，超时或违规时按最新答案提交
func (m *IntegrityMonitor) UpdateAnswers(answers model.ExamAnswers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = answers
}

func (m *IntegrityMonitor) PushFrame(frame []byte, mimeType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
	m.mime = mimeType
}

func (m *IntegrityMonitor) takeFrame() ([]byte, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame, mime := m.frame, m.mime
	m.frame, m.mime = nil, ""
	return frame, mime
}

func (m *IntegrityMonitor) hasFrame() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame != nil
}

func (m *IntegrityMonitor) sessionContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *IntegrityMonitor) currentAnswers() model.ExamAnswers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answers
}

// trigger 终止守卫；只有第一个调用者会提交
func (m *IntegrityMonitor) trigger(t Trigger, reason string, fraudReason *string) bool {
	if !m.state.CompareAndSwap(int32(StateRunning), int32(StateTerminating)) {
		logger.Log.Debug("Termination trigger ignored",
			zap.String("trigger", string(t)),
			zap.String("state", m.State().String()))
		return false
	}
	close(m.stop)
	monitoring.MonitorTerminations.WithLabelValues(string(t)).Inc()

	answers := m.currentAnswers()
	// 断线不应中断已经开始的提交
	submitCtx := context.WithoutCancel(m.sessionContext())

	go func() {
		result, err := m.submit(submitCtx, answers, fraudReason)

		m.mu.Lock()
		m.outcome = Termination{Trigger: t, Reason: reason, Result: result, Err: err}
		m.mu.Unlock()
		m.state.Store(int32(StateTerminated))

		// 先推送终止事件再关闭 done，等待方据此关闭连接
		if err != nil {
			logger.Log.Error("Monitor submission failed", zap.String("trigger", string(t)), zap.Error(err))
			m.notify(MonitorEvent{Type: EventError, Trigger: t, Message: err.Error()})
		} else {
			m.notify(MonitorEvent{Type: EventTerminated, Trigger: t, Reason: reason, Result: result})
		}
		close(m.done)
	}()
	return true
}

func (m *IntegrityMonitor) Done() <-chan struct{} {
	return m.done
}

// Wait 等待提交完成
func (m *IntegrityMonitor) Wait(ctx context.Context) (Termination, error) {
	select {
	case <-m.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.outcome, nil
	case <-ctx.Done():
		return Termination{}, ctx.Err()
	}
}
