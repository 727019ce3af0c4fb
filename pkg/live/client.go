package live

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/tier"
)

const defaultReconnectDelay = 2 * time.Second

// Client is a reconnecting WebSocket endpoint of a Hub. Messages published
// while disconnected are buffered up to the send buffer and dropped beyond
// it.
type Client struct {
	url            string
	origin         string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	send      chan []byte
	subs      subscribers
	connected atomic.Bool
	logger    zerolog.Logger
}

var _ tier.Live = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithReconnectDelay sets the pause between connection attempts
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

// Dial starts a client for the hub at url. It returns immediately; the
// connection is established and re-established in the background until
// Close or ctx cancellation.
func Dial(ctx context.Context, url, origin string, opts ...ClientOption) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		url:            url,
		origin:         origin,
		reconnectDelay: defaultReconnectDelay,
		dialer:         websocket.DefaultDialer,
		ctx:            cancelCtx,
		cancel:         cancel,
		send:           make(chan []byte, sendBufferSize),
		logger:         log.WithComponent("live").With().Str("origin", origin).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

func (c *Client) Origin() string {
	return c.origin
}

// Connected reports whether a hub connection is currently open
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) Publish(msg tier.LiveMessage) {
	data, err := NewEnvelope(c.origin, msg).Encode()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", msg.Key).Msg("Failed to encode live message")
		return
	}
	select {
	case c.send <- data:
		metrics.LiveMessagesTotal.WithLabelValues("out").Inc()
	default:
		metrics.LiveMessagesTotal.WithLabelValues("dropped").Inc()
		c.logger.Warn().Str("key", msg.Key).Msg("Live send buffer full, dropping message")
	}
}

func (c *Client) Subscribe(fn func(tier.LiveMessage)) func() {
	return c.subs.add(fn)
}

func (c *Client) Close() {
	c.cancel()
}

func (c *Client) run() {
	defer c.connected.Store(false)

	for {
		ws, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Live hub unreachable")
			metrics.UpdateComponent(metrics.ComponentLive, false, err.Error())
		} else {
			c.handle(ws)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	c.connected.Store(true)
	defer c.connected.Store(false)
	metrics.UpdateComponent(metrics.ComponentLive, true, "")
	c.logger.Info().Str("url", c.url).Msg("Connected to live hub")

	go func() {
		defer handleCancel()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-handleCtx.Done():
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				ws.Close()
				return
			case data := <-c.send:
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					c.logger.Debug().Err(err).Msg("Live write failed")
					return
				}
			case <-ticker.C:
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	ws.SetReadLimit(maxMessageSize)
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-handleCtx.Done():
			default:
				c.logger.Info().Err(err).Msg("Disconnected from live hub")
				metrics.UpdateComponent(metrics.ComponentLive, false, err.Error())
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := Decode(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Dropping malformed envelope")
			continue
		}
		if env.Origin == c.origin {
			continue
		}
		metrics.LiveMessagesTotal.WithLabelValues("in").Inc()
		c.subs.deliver(env.Message)
	}
}
