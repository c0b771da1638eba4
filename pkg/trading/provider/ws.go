package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// SubscribeMessage is sent after connecting.
type SubscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// QuoteMessage is one quote on the wire.
type QuoteMessage struct {
	Symbol        string          `json:"symbol"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	Last          decimal.Decimal `json:"last"`
	ChangePercent float64         `json:"change_percent"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"ts"`
}

// Quote converts the message; a missing timestamp is set to now.
func (m QuoteMessage) Quote(now time.Time) trading.Quote {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return trading.Quote{
		Symbol:        trading.NormalizeSymbol(m.Symbol),
		Bid:           m.Bid,
		Ask:           m.Ask,
		Last:          m.Last,
		ChangePercent: m.ChangePercent,
		Volume:        m.Volume,
		Timestamp:     ts,
	}
}

// WSFeed streams quotes over a websocket and reconnects with backoff when
// the connection drops.
type WSFeed struct {
	URL string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration

	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSFeed creates a feed for url. logger may be nil.
func NewWSFeed(url string, logger *zap.Logger) *WSFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSFeed{
		URL:          url,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 20 * time.Second,
		MinBackoff:   time.Second,
		MaxBackoff:   30 * time.Second,
		dialer:       websocket.DefaultDialer,
		logger:       logger.Named("wsfeed"),
	}
}

// Subscribe dials the feed, sends the subscription and starts delivering
// quotes. The first dial error is returned; later drops are retried.
func (f *WSFeed) Subscribe(ctx context.Context, symbols []string, callback func(trading.Quote)) error {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return errors.New("wsfeed: already subscribed")
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	norm := make([]string, len(symbols))
	for i, s := range symbols {
		norm[i] = trading.NormalizeSymbol(s)
	}

	conn, err := f.connect(ctx, norm)
	if err != nil {
		cancel()
		f.mu.Lock()
		f.cancel = nil
		close(f.done)
		f.mu.Unlock()
		return err
	}

	go f.run(ctx, conn, norm, callback)
	return nil
}

func (f *WSFeed) connect(ctx context.Context, symbols []string) (*websocket.Conn, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.URL, err)
	}

	conn.SetWriteDeadline(time.Now().Add(f.WriteTimeout))
	if err := conn.WriteJSON(SubscribeMessage{Action: "subscribe", Symbols: symbols}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.logger.Info("connected", zap.String("url", f.URL), zap.Strings("symbols", symbols))
	return conn, nil
}

func (f *WSFeed) run(ctx context.Context, conn *websocket.Conn, symbols []string, callback func(trading.Quote)) {
	defer close(f.done)

	backoff := f.MinBackoff
	for {
		err := f.readLoop(ctx, conn, callback)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, f.MaxBackoff)

			conn, err = f.connect(ctx, symbols)
			if err == nil {
				backoff = f.MinBackoff
				break
			}
			f.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		}
	}
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn, callback func(trading.Quote)) error {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
	})

	stop := make(chan struct{})
	defer close(stop)
	go f.ping(ctx, conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))

		for _, msg := range decodeQuotes(data) {
			q := msg.Quote(time.Now())
			if !q.Valid() {
				continue
			}
			callback(q)
		}
	}
}

func (f *WSFeed) ping(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(f.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			// unblock ReadMessage
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(f.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// decodeQuotes accepts a single quote object or an array of them.
func decodeQuotes(data []byte) []QuoteMessage {
	var batch []QuoteMessage
	if err := json.Unmarshal(data, &batch); err == nil {
		return batch
	}
	var one QuoteMessage
	if err := json.Unmarshal(data, &one); err != nil || one.Symbol == "" {
		return nil
	}
	return []QuoteMessage{one}
}

// Close stops the subscription and waits for the reader to exit.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	cancel, done, conn := f.cancel, f.done, f.conn
	f.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	return nil
}
