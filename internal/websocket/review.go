package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
	"go.uber.org/zap"
)

var (
	// ErrDecisionTimeout is returned when the reviewer does not answer in time
	ErrDecisionTimeout = errors.New("reviewer did not answer in time")
	// ErrReviewClosed is returned when the reviewer disconnects mid-review
	ErrReviewClosed = errors.New("review connection closed")
)

// EngineFunc returns the engine currently in effect
type EngineFunc func() *workflow.Engine

// ReviewHandler runs one sentence review per connection. The client sends
// a start message with the text, answers each decision request with a/b/c
// and receives the result and report at the end.
type ReviewHandler struct {
	engine        EngineFunc
	hub           *Hub
	config        *config.WebSocketConfig
	upgrader      websocket.Upgrader
	previewLength int
	logger        *logger.Logger
}

// NewReviewHandler creates a review handler; hub may be nil
func NewReviewHandler(engine EngineFunc, hub *Hub, cfg *config.WebSocketConfig, previewLength int, log *logger.Logger) *ReviewHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ReviewHandler{
		engine:        engine,
		hub:           hub,
		config:        cfg,
		upgrader:      newUpgrader(cfg),
		previewLength: previewLength,
		logger:        log.WithComponent("review"),
	}
}

func (h *ReviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade review connection", zap.Error(err))
		return
	}
	defer conn.Close()

	s := &reviewSession{
		id:           uuid.NewString(),
		conn:         conn,
		answers:      make(chan DecisionAnswer, 16),
		timeout:      h.config.DecisionTimeout,
		writeTimeout: h.config.WriteTimeout,
	}
	log := h.logger.WithRequestID(s.id)
	conn.SetReadLimit(h.config.MaxMessageSize)

	start, err := s.readStart(h.config.PongTimeout)
	if err != nil {
		log.Warn("Review did not start", zap.Error(err))
		s.send(ReviewError, Notice{Message: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.readAnswers(ctx, cancel, h.config.PongTimeout)
	go s.keepAlive(ctx, pingInterval(h.config))

	engine := h.engine()
	began := time.Now()
	res, err := engine.Process(ctx, start.Text, s)

	outcome := ReviewOutcome{Result: res}
	if err != nil {
		outcome.Error = err.Error()
		log.Warn("Review ended early", zap.Error(err))
	}
	if res != nil {
		doc := start.Document
		if doc == "" {
			doc = res.DocumentID
		}
		outcome.Report = report.ForResult(engine.Registry(), doc, res, h.previewLength)
		if h.hub != nil {
			h.hub.PublishReport(s.id, res.DocumentID, outcome.Report, time.Since(began))
		}
	}

	if err := s.send(ReviewResult, outcome); err != nil {
		log.Debug("Failed to deliver review result", zap.Error(err))
		return
	}
	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "review complete"))
	s.writeMu.Unlock()
}

// reviewSession is the workflow.Decider of one connection
type reviewSession struct {
	id           string
	conn         *websocket.Conn
	writeMu      sync.Mutex
	answers      chan DecisionAnswer
	timeout      time.Duration
	writeTimeout time.Duration
}

func (s *reviewSession) send(typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(ReviewMessage{Type: typ, Data: payload})
}

func (s *reviewSession) readStart(wait time.Duration) (*StartReview, error) {
	if wait > 0 {
		s.conn.SetReadDeadline(time.Now().Add(wait))
	}
	var msg ReviewMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, fmt.Errorf("failed to read start message: %w", err)
	}
	if msg.Type != ReviewStart {
		return nil, fmt.Errorf("expected %q message, got %q", ReviewStart, msg.Type)
	}
	var start StartReview
	if err := json.Unmarshal(msg.Data, &start); err != nil {
		return nil, fmt.Errorf("invalid start message: %w", err)
	}
	return &start, nil
}

// readAnswers feeds decision answers to Decide and cancels the review when
// the reviewer goes away
func (s *reviewSession) readAnswers(ctx context.Context, cancel context.CancelFunc, wait time.Duration) {
	defer close(s.answers)
	defer cancel()

	extend := func() {
		if wait > 0 {
			s.conn.SetReadDeadline(time.Now().Add(wait))
		} else {
			s.conn.SetReadDeadline(time.Time{})
		}
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		var msg ReviewMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		extend()
		if msg.Type != ReviewDecision {
			continue
		}
		var answer DecisionAnswer
		if err := json.Unmarshal(msg.Data, &answer); err != nil {
			s.send(ReviewInvalid, Notice{Message: "malformed decision"})
			continue
		}
		select {
		case s.answers <- answer:
		case <-ctx.Done():
			return
		}
	}
}

func (s *reviewSession) keepAlive(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Decide sends the flagged sentence and waits for the reviewer's answer.
// Answers for other sentences are stale and skipped.
func (s *reviewSession) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	if err := s.send(ReviewDecisionRequest, req); err != nil {
		return "", fmt.Errorf("failed to send decision request: %w", err)
	}

	var expired <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-expired:
			return "", ErrDecisionTimeout
		case answer, ok := <-s.answers:
			if !ok {
				return "", ErrReviewClosed
			}
			if answer.Index != req.Index {
				continue
			}
			d, err := workflow.ParseDecision(answer.Answer)
			if err != nil {
				s.send(ReviewInvalid, Notice{Message: err.Error()})
				return "", err
			}
			return d, nil
		}
	}
}
