package service

import (
	"context"
	"encoding/json"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/util"
	"exam_proctor_backend/pkg/logger"
	"exam_proctor_backend/pkg/monitoring"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// 上行消息类型
const (
	MsgFrame            = "FRAME"
	MsgFocusLost        = "FOCUS_LOST"
	MsgVisibilityHidden = "VISIBILITY_HIDDEN"
	MsgAnswers          = "ANSWERS"
	MsgSubmit           = "SUBMIT"
)

// ProctorMessage 考生端上行消息
type ProctorMessage struct {
	Type      string `json:"type"`
	Frame     string `json:"frame,omitempty"`
	Knowledge []int  `json:"knowledge,omitempty"`
	Learning  []int  `json:"learning,omitempty"`
}

func (m ProctorMessage) answers() model.ExamAnswers {
	return model.ExamAnswers{Knowledge: m.Knowledge, Learning: m.Learning}
}

// ProctorClient 一个考生的监考连接，持有服务端的 IntegrityMonitor
type ProctorClient struct {
	Hub          *ProctorHub
	Conn         *websocket.Conn
	Send         chan []byte
	CandidateKey string
	Monitor      *IntegrityMonitor
	Limiter      *rate.Limiter

	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

func (c *ProctorClient) push(e MonitorEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		logger.Log.Warn("Proctor send buffer full, dropping event",
			zap.String("candidate", c.CandidateKey),
			zap.String("type", string(e.Type)))
	}
}

func (c *ProctorClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *ProctorClient) readPump() {
	defer func() {
		// 断开只解除监控，不提交
		c.cancel()
		c.Hub.unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(c.Hub.maxMessageSize())
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("Proctor websocket closed unexpectedly", zap.Error(err), zap.String("candidate", c.CandidateKey))
			}
			break
		}

		var msg ProctorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.push(MonitorEvent{Type: EventError, Message: "malformed message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *ProctorClient) handle(msg ProctorMessage) {
	switch msg.Type {
	case MsgFrame:
		// 帧消息限流，终止类消息不受限
		if !c.Limiter.Allow() {
			return
		}
		frame, mimeType, err := util.DecodeFrame(msg.Frame, c.Hub.Cfg.MaxFrameBytes)
		if err != nil {
			c.push(MonitorEvent{Type: EventError, Message: err.Error()})
			return
		}
		c.Monitor.PushFrame(frame, mimeType)
	case MsgFocusLost:
		c.Monitor.FocusLost()
	case MsgVisibilityHidden:
		c.Monitor.VisibilityHidden()
	case MsgAnswers:
		c.Monitor.UpdateAnswers(msg.answers())
	case MsgSubmit:
		c.Monitor.SubmitManual(msg.answers())
	default:
		c.push(MonitorEvent{Type: EventError, Message: "unknown message type " + msg.Type})
	}
}

func (c *ProctorClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "exam finished"))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ProctorHub 每个候选人至多一条活跃监考连接，新连接会顶掉旧连接
type ProctorHub struct {
	Exams      *ExamService
	Proctoring *ProctoringService
	Cfg        config.ProctoringConfig
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*ProctorClient
}

func NewProctorHub(exams *ExamService, proctoring *ProctoringService, cfg config.ProctoringConfig, checkOrigin func(r *http.Request) bool) *ProctorHub {
	return &ProctorHub{
		Exams:      exams,
		Proctoring: proctoring,
		Cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]*ProctorClient),
	}
}

func (h *ProctorHub) maxMessageSize() int64 {
	// base64 膨胀 4/3，外加 JSON 包装
	return int64(h.Cfg.MaxFrameBytes)*4/3 + 4096
}

func (h *ProctorHub) register(c *ProctorClient) {
	h.mu.Lock()
	old := h.clients[c.CandidateKey]
	h.clients[c.CandidateKey] = c
	h.mu.Unlock()

	monitoring.ProctorConnections.Inc()
	if old != nil {
		logger.Log.Info("Replacing existing proctor connection", zap.String("candidate", c.CandidateKey))
		old.cancel()
		old.Conn.Close()
	}
}

func (h *ProctorHub) unregister(c *ProctorClient) {
	h.mu.Lock()
	if h.clients[c.CandidateKey] == c {
		delete(h.clients, c.CandidateKey)
	}
	h.mu.Unlock()
	monitoring.ProctorConnections.Dec()
	c.closeSend()
}

// frameLimiter 未配置时按每秒 2 帧、突发 4 帧
func (h *ProctorHub) frameLimiter() *rate.Limiter {
	perSecond, burst := h.Cfg.FrameRatePerSecond, h.Cfg.FrameBurst
	if perSecond <= 0 {
		perSecond = 2
	}
	if burst <= 0 {
		burst = 4
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Stop 关闭所有连接；监控被解除但不提交，考生重连后可继续作答
func (h *ProctorHub) Stop() {
	h.mu.Lock()
	clients := make([]*ProctorClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		c.Conn.Close()
	}
	logger.Log.Info("Proctor hub stopped", zap.Int("connections", len(clients)))
}

// ServeWs 升级前校验会话，错误由调用方按 HTTP 响应返回
func (h *ProctorHub) ServeWs(w http.ResponseWriter, r *http.Request, candidateKey string) error {
	session, err := h.Exams.Session(candidateKey)
	if err != nil {
		return err
	}
	if session.IsFinalized() {
		return util.ErrExamConflict
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.String("candidate", candidateKey))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &ProctorClient{
		Hub:          h,
		Conn:         conn,
		Send:         make(chan []byte, 64),
		CandidateKey: candidateKey,
		Limiter:      h.frameLimiter(),
		cancel:       cancel,
	}
	client.Monitor = NewIntegrityMonitor(
		MonitorConfig{
			Duration:       h.Exams.Remaining(session),
			SampleInterval: h.Cfg.SampleInterval(),
			FraudGrace:     h.Cfg.FraudGrace(),
		},
		func(ctx context.Context, answers model.ExamAnswers, fraudReason *string) (*model.ExamResult, error) {
			return h.Exams.Submit(ctx, candidateKey, answers, fraudReason)
		},
		func(ctx context.Context, frame []byte, mimeType string) *AnalysisResult {
			return h.Proctoring.Analyze(ctx, candidateKey, frame, mimeType)
		},
		client.push,
	)
	h.register(client)

	go client.writePump()
	go func() {
		select {
		case <-client.Monitor.Done():
			client.closeSend()
		case <-ctx.Done():
		}
	}()
	client.Monitor.Start(ctx)
	go client.readPump()

	logger.Log.Info("Proctoring session attached",
		zap.String("candidate", candidateKey),
		zap.Duration("remaining", h.Exams.Remaining(session)))
	return nil
}
