package heliusevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"koltracker/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HeliusEventsClient maintains one websocket connection to the Helius RPC
// endpoint and forwards raw frames. Connection lifecycle (when to dial, when
// to back off) belongs to the caller; this client only owns a single
// dial-subscribe-read cycle.
type HeliusEventsClient struct {
	logger *zap.Logger

	wsURL        string
	dialer       *websocket.Dialer
	pingInterval time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	msgCh   chan json.RawMessage
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

// NewHeliusEventsClient creates a new events client.
// The websocket key falls back to the API key when no RPC key is configured.
func NewHeliusEventsClient(logger *zap.Logger, cfg *config.Config) *HeliusEventsClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	key := cfg.Helius.RPCKey
	if key == "" {
		key = cfg.Helius.APIKey
	}

	var url string
	if key != "" {
		url = fmt.Sprintf("%s/?api-key=%s", cfg.Helius.WSURL, key)
	}

	pingInterval := cfg.Helius.PingInterval
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}

	return &HeliusEventsClient{
		logger:       logger,
		wsURL:        url,
		dialer:       websocket.DefaultDialer,
		pingInterval: pingInterval,

		msgCh:   make(chan json.RawMessage, 1024),
		errCh:   make(chan error, 64),
		closeCh: make(chan struct{}),
	}
}

// IsEnabled returns true if a websocket key is configured.
func (c *HeliusEventsClient) IsEnabled() bool {
	return c.wsURL != ""
}

// Connect dials the RPC websocket and subscribes to transaction
// notifications for the given wallet set. The subscription names the full
// set, so callers reconnect (rather than resubscribe) when the set changes.
func (c *HeliusEventsClient) Connect(ctx context.Context, wallets []string) error {
	if c.wsURL == "" {
		return fmt.Errorf("no websocket key configured")
	}
	if len(wallets) == 0 {
		return fmt.Errorf("no wallets to subscribe to")
	}

	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial helius ws: %w", err)
	}

	c.logger.Info("helius ws dialed", zap.Int("wallets", len(wallets)))

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Warn("helius ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	// Each dial cycle gets the channel Close will tear down; loops hold it
	// by value so a stale loop can never observe a later cycle's channel
	closeCh := c.closeCh
	c.connMu.Unlock()

	if err := c.writeJSON(SubscribePayload(wallets)); err != nil {
		_ = conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return fmt.Errorf("send subscription: %w", err)
	}

	c.logger.Info("helius ws subscription sent")

	go c.readLoop(closeCh)
	go c.pingLoop(closeCh)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-closeCh:
		}
	}()

	return nil
}

// SubscribePayload builds the transactionSubscribe request for a wallet set.
func SubscribePayload(wallets []string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "transactionSubscribe",
		"params": []any{
			map[string]any{
				"failed":         false,
				"accountInclude": wallets,
			},
			map[string]any{
				"commitment":                     "confirmed",
				"encoding":                       "jsonParsed",
				"transactionDetails":             "full",
				"showRewards":                    false,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}
}

// Messages returns the raw frame channel.
func (c *HeliusEventsClient) Messages() <-chan json.RawMessage {
	return c.msgCh
}

// Errors returns the read-error channel.
func (c *HeliusEventsClient) Errors() <-chan error {
	return c.errCh
}

// WSStats holds message counters for health reporting.
type WSStats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

// Stats returns message counters.
func (c *HeliusEventsClient) Stats() WSStats {
	n := atomic.LoadUint64(&c.msgCount)
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return WSStats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

// IsConnected reports whether a connection is currently held.
func (c *HeliusEventsClient) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Close tears down the connection and stops the read/ping loops.
// The client can be reconnected afterwards.
func (c *HeliusEventsClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}

	// Fresh channel so a later Connect gets working loops
	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	return err
}

// closeCycle tears the client down only if closeCh still belongs to the
// current dial cycle. A read loop that outlives an explicit Close must not
// kill the connection a later Connect established.
func (c *HeliusEventsClient) closeCycle(closeCh chan struct{}) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closeCh != closeCh {
		return
	}

	select {
	case <-closeCh:
	default:
		close(closeCh)
	}
	c.closeCh = make(chan struct{})

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *HeliusEventsClient) writeJSON(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (c *HeliusEventsClient) pingLoop(closeCh chan struct{}) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn != nil {
				c.writeMu.Lock()
				_ = conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
			}

		case <-closeCh:
			return
		}
	}
}

func (c *HeliusEventsClient) readLoop(closeCh chan struct{}) {
	c.logger.Debug("helius ws read loop started")

	for {
		select {
		case <-closeCh:
			c.logger.Debug("helius ws read loop exiting: closed")
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("helius ws read error", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			c.closeCycle(closeCh)
			return
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		select {
		case c.msgCh <- json.RawMessage(append([]byte(nil), b...)):
		default:
			c.logger.Warn("dropping ws message: channel full")
		}
	}
}

// SubscriptionAck is the JSON-RPC reply confirming the subscription.
type SubscriptionAck struct {
	ID     int   `json:"id"`
	Result int64 `json:"result"`
}

// TransactionNotification is the envelope for a pushed transaction.
type TransactionNotification struct {
	Method string `json:"method"`
	Params struct {
		Result NotificationResult `json:"result"`
	} `json:"params"`
}

// NotificationResult carries the signature and raw account data of one
// pushed transaction.
type NotificationResult struct {
	Signature   string `json:"signature"`
	Transaction struct {
		Transaction struct {
			Message struct {
				AccountKeys []json.RawMessage `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	} `json:"transaction"`
}

// ParseSubscriptionAck attempts to parse a frame as a subscription
// acknowledgement. Returns (id, true) on success.
func ParseSubscriptionAck(data json.RawMessage) (int64, bool) {
	var ack SubscriptionAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return 0, false
	}
	if ack.Result == 0 {
		return 0, false
	}
	return ack.Result, true
}

// ParseTransactionNotification attempts to parse a frame as a transaction
// notification. Returns nil if the frame is something else.
func ParseTransactionNotification(data json.RawMessage) *NotificationResult {
	var n TransactionNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	if n.Method != "transactionNotification" || n.Params.Result.Signature == "" {
		return nil
	}
	return &n.Params.Result
}

// FeePayer extracts the paying wallet (first account key) from a
// notification. Account keys arrive either as plain strings or as
// {pubkey: ...} objects depending on encoding.
func (r *NotificationResult) FeePayer() string {
	keys := r.Transaction.Transaction.Message.AccountKeys
	if len(keys) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(keys[0], &s); err == nil {
		return s
	}

	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(keys[0], &obj); err == nil {
		return obj.Pubkey
	}

	return ""
}
