package service

import (
	"context"
	"exam_proctor_backend/internal/model"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type submitRecorder struct {
	calls   atomic.Int32
	mu      sync.Mutex
	reasons []*string
	answers []model.ExamAnswers
	delay   time.Duration
}

func (r *submitRecorder) submit(ctx context.Context, answers model.ExamAnswers, fraudReason *string) (*model.ExamResult, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.reasons = append(r.reasons, fraudReason)
	r.answers = append(r.answers, answers)
	r.mu.Unlock()

	if fraudReason != nil {
		return &model.ExamResult{Verdict: model.VerdictDisqualified, FraudReason: fraudReason}, nil
	}
	return &model.ExamResult{Score: 80, Verdict: model.VerdictPassed}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (l *eventLog) add(e MonitorEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) has(t MonitorEventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func waitTermination(t *testing.T, m *IntegrityMonitor) Termination {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	term, err := m.Wait(ctx)
	require.NoError(t, err)
	return term
}

func fraudAnalyzer(reason string) FrameAnalyzer {
	return func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult {
		return &AnalysisResult{Fraud: true, Reason: &reason}
	}
}

func TestMonitorSingleTerminationUnderSimultaneousTriggers(t *testing.T) {
	for i := 0; i < 50; i++ {
		rec := &submitRecorder{}
		m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour, SampleInterval: time.Hour}, rec.submit, nil, nil)
		require.True(t, m.Start(context.Background()))

		start := make(chan struct{})
		var wg sync.WaitGroup
		var winners atomic.Int32
		fire := func(f func() bool) {
			defer wg.Done()
			<-start
			if f() {
				winners.Add(1)
			}
		}
		reason := "multiple people detected"
		wg.Add(5)
		go fire(func() bool { return m.trigger(TriggerTimeout, ReasonTimeExpired, nil) })
		go fire(m.FocusLost)
		go fire(m.VisibilityHidden)
		go fire(func() bool { return m.trigger(TriggerFraud, reason, &reason) })
		go fire(func() bool { return m.SubmitManual(model.ExamAnswers{}) })
		close(start)
		wg.Wait()

		waitTermination(t, m)
		require.EqualValues(t, 1, winners.Load())
		require.EqualValues(t, 1, rec.calls.Load())
		require.Equal(t, StateTerminated, m.State())
	}
}

func TestMonitorTimeoutSubmitsWithoutFraudReason(t *testing.T) {
	rec := &submitRecorder{}
	events := &eventLog{}
	m := NewIntegrityMonitor(MonitorConfig{Duration: 20 * time.Millisecond, SampleInterval: time.Hour}, rec.submit, nil, events.add)
	m.UpdateAnswers(model.ExamAnswers{Knowledge: []int{0, 1}})
	require.True(t, m.Start(context.Background()))

	term := waitTermination(t, m)
	require.Equal(t, TriggerTimeout, term.Trigger)
	require.Equal(t, ReasonTimeExpired, term.Reason)
	require.Equal(t, model.VerdictPassed, term.Result.Verdict)

	rec.mu.Lock()
	require.Nil(t, rec.reasons[0])
	require.Equal(t, []int{0, 1}, rec.answers[0].Knowledge)
	rec.mu.Unlock()

	require.Eventually(t, func() bool { return events.has(EventTerminated) }, time.Second, 5*time.Millisecond)
	require.True(t, events.has(EventStarted))
}

func TestMonitorFraudVerdictTerminatesAfterGrace(t *testing.T) {
	rec := &submitRecorder{}
	events := &eventLog{}
	m := NewIntegrityMonitor(MonitorConfig{
		Duration:       time.Hour,
		SampleInterval: 10 * time.Millisecond,
		FraudGrace:     30 * time.Millisecond,
	}, rec.submit, fraudAnalyzer(ReasonMultiplePeople), events.add)
	m.PushFrame([]byte("frame"), "image/jpeg")
	require.True(t, m.Start(context.Background()))

	term := waitTermination(t, m)
	require.Equal(t, TriggerFraud, term.Trigger)
	require.Equal(t, ReasonMultiplePeople, term.Reason)
	require.Equal(t, model.VerdictDisqualified, term.Result.Verdict)
	require.True(t, events.has(EventFraudAlert))
	require.EqualValues(t, 1, rec.calls.Load())
}

func TestMonitorLateFraudVerdictIsNoop(t *testing.T) {
	rec := &submitRecorder{}
	release := make(chan struct{})
	analyzer := func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult {
		<-release
		reason := ReasonDevice
		return &AnalysisResult{Fraud: true, Reason: &reason}
	}
	m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour, SampleInterval: 5 * time.Millisecond}, rec.submit, analyzer, nil)
	m.PushFrame([]byte("frame"), "image/jpeg")
	require.True(t, m.Start(context.Background()))

	require.Eventually(t, func() bool { return m.analyzing.Load() }, time.Second, time.Millisecond)
	require.True(t, m.SubmitManual(model.ExamAnswers{Knowledge: []int{0}}))
	close(release)

	term := waitTermination(t, m)
	require.Equal(t, TriggerManual, term.Trigger)
	require.Equal(t, model.VerdictPassed, term.Result.Verdict)

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, rec.calls.Load())
	rec.mu.Lock()
	require.Nil(t, rec.reasons[0])
	rec.mu.Unlock()
}

func TestMonitorFailOpenKeepsRunning(t *testing.T) {
	rec := &submitRecorder{}
	events := &eventLog{}
	analyzer := func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult {
		return &AnalysisResult{Error: UnavailableMessage}
	}
	m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour, SampleInterval: 5 * time.Millisecond}, rec.submit, analyzer, events.add)
	m.PushFrame([]byte("frame"), "image/jpeg")
	require.True(t, m.Start(context.Background()))

	require.Eventually(t, func() bool { return events.has(EventStatus) }, time.Second, 5*time.Millisecond)
	require.Equal(t, StateRunning, m.State())
	require.Zero(t, rec.calls.Load())

	require.True(t, m.SubmitManual(model.ExamAnswers{}))
	waitTermination(t, m)
}

func TestMonitorSkipsOverlappingSamples(t *testing.T) {
	rec := &submitRecorder{}
	release := make(chan struct{})
	var inFlight, maxInFlight, calls atomic.Int32
	analyzer := func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult {
		calls.Add(1)
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		<-release
		inFlight.Add(-1)
		return &AnalysisResult{}
	}
	m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour, SampleInterval: 2 * time.Millisecond}, rec.submit, analyzer, nil)
	m.PushFrame([]byte("frame"), "image/jpeg")
	require.True(t, m.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 1, maxInFlight.Load())

	close(release)
	m.PushFrame([]byte("next"), "image/jpeg")
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 2*time.Millisecond)

	require.True(t, m.FocusLost())
	term := waitTermination(t, m)
	require.Equal(t, TriggerFocusLost, term.Trigger)
	require.Equal(t, model.VerdictDisqualified, term.Result.Verdict)
}

func TestMonitorAnalyzesEachFrameOnce(t *testing.T) {
	rec := &submitRecorder{}
	var calls atomic.Int32
	analyzer := func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult {
		calls.Add(1)
		return &AnalysisResult{}
	}
	m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour, SampleInterval: 20 * time.Millisecond}, rec.submit, analyzer, nil)
	m.PushFrame([]byte("frame"), "image/jpeg")
	require.True(t, m.Start(context.Background()))

	time.Sleep(250 * time.Millisecond)
	require.EqualValues(t, 1, calls.Load())

	m.PushFrame([]byte("second"), "image/jpeg")
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 2, calls.Load())

	require.True(t, m.SubmitManual(model.ExamAnswers{}))
	waitTermination(t, m)
}

type sessionKey struct{}

func TestMonitorSubmitUsesStartContext(t *testing.T) {
	for i := 0; i < 50; i++ {
		var seen atomic.Value
		submit := func(ctx context.Context, answers model.ExamAnswers, fraudReason *string) (*model.ExamResult, error) {
			if v, ok := ctx.Value(sessionKey{}).(string); ok {
				seen.Store(v)
			}
			return &model.ExamResult{Verdict: model.VerdictDisqualified, FraudReason: fraudReason}, nil
		}
		m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour, SampleInterval: time.Hour}, submit, nil, nil)

		ctx := context.WithValue(context.Background(), sessionKey{}, "ana")
		started := make(chan struct{})
		var fired atomic.Bool
		go func() {
			<-started
			// Start 返回前就可能触发
			for !fired.Load() {
				fired.Store(m.FocusLost())
			}
		}()
		close(started)
		require.True(t, m.Start(ctx))

		waitTermination(t, m)
		require.Equal(t, "ana", seen.Load())
	}
}

func TestMonitorDisconnectDoesNotSubmit(t *testing.T) {
	rec := &submitRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	m := NewIntegrityMonitor(MonitorConfig{Duration: 30 * time.Millisecond, SampleInterval: time.Hour}, rec.submit, nil, nil)
	require.True(t, m.Start(ctx))
	cancel()

	time.Sleep(80 * time.Millisecond)
	require.Zero(t, rec.calls.Load())
	require.Equal(t, StateRunning, m.State())
}

func TestMonitorIgnoresTriggersBeforeStart(t *testing.T) {
	rec := &submitRecorder{}
	m := NewIntegrityMonitor(MonitorConfig{Duration: time.Hour}, rec.submit, nil, nil)

	require.False(t, m.FocusLost())
	require.False(t, m.SubmitManual(model.ExamAnswers{}))
	require.Equal(t, StateIdle, m.State())
	require.Zero(t, rec.calls.Load())
}
