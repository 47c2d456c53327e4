package market

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Stream is a reconnecting websocket client for the quote feed.
// Subscriptions are replayed after every reconnect.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   []interface{}
	sentOn *websocket.Conn
}

func NewStream(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Stream {
	return &Stream{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *Stream) Subscribe(ctx context.Context, sub interface{}) error {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("stream not connected")
	}
	if err := writeJSON(ctx, conn, sub); err != nil {
		return err
	}
	s.mu.Lock()
	s.sentOn = conn
	s.mu.Unlock()
	return nil
}

func (s *Stream) Run(ctx context.Context, handler func(json.RawMessage)) error {
	for {
		if err := s.ensureConnected(ctx); err != nil {
			return err
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			s.pingLoop(pingCtx)
		}()
		err := s.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logReadLoopError(err)
			s.resetConn()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.reconnectDelay):
			}
			continue
		}
	}
}

func (s *Stream) ensureConnected(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	subs := append([]interface{}(nil), s.subs...)
	sent := s.sentOn == conn
	s.mu.Unlock()
	// Subscriptions already went out on this connection; replay only after
	// a reconnect.
	if sent {
		return nil
	}
	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.sentOn = conn
	s.mu.Unlock()
	return nil
}

func (s *Stream) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("stream not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	interval := s.pingInterval
	s.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (s *Stream) logReadLoopError(err error) {
	if s.log == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			s.log.Info("quote stream ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
		s.log.Info("quote stream ended", zap.Error(err))
		return
	}
	s.log.Warn("quote stream ended", zap.Error(err))
}

func (s *Stream) resetConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "reset")
		s.conn = nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var pingMessage = map[string]any{"method": "ping"}
