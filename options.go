package mqttc

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextDialer is an interface for custom network dialing logic. It
// matches the signature of net.Dialer.DialContext, so alternative
// transports (WebSockets, Unix sockets, a proxying dialer) can be plugged
// in without adding a transport dependency to the core module.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DialFunc adapts a plain function to the ContextDialer interface.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext implements ContextDialer.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// willMessage is the Last Will and Testament carried in CONNECT.
type willMessage struct {
	Topic    string
	Payload  []byte
	QoS      QoS
	Retained bool
}

// clientOptions holds the full configuration of a Client. It is built by
// applying a sequence of Option values over defaultOptions.
type clientOptions struct {
	server   string
	clientID string
	username string
	password string

	keepAlive           time.Duration
	cleanSession        bool
	autoReconnect       bool
	connectTimeout      time.Duration
	reconnectRetryDelay time.Duration

	tlsConfig *tls.Config
	dialer    ContextDialer

	logger *logrus.Logger

	maxTopicLength    int
	maxPayloadSize    int
	maxIncomingPacket int
	readBufferSize    int
	writeBufferSize   int
	maxInFlight       int

	will *willMessage

	onConnect        func(*Client)
	onConnectionLost func(*Client, error)
	reconnectHandler func(*Client)

	// defaultPublishHandler receives PUBLISH messages matching no
	// registered subscription filter, mirroring the interceptor hook.
	defaultPublishHandler MessageHandler

	initialSubscriptions map[string]subscriptionRequest
}

type subscriptionRequest struct {
	qos     QoS
	handler MessageHandler
}

// Option configures a Client at construction time.
type Option func(*clientOptions)

// WithClientID sets the client identifier sent in CONNECT.
//
// With CleanSession true, an empty ID is replaced by a randomly generated
// one. With CleanSession false, a non-empty ID is required: NewClient
// fails with ErrNullArg otherwise.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.clientID = id
	}
}

// WithCredentials sets the username and password carried in CONNECT.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}

// WithKeepAlive sets the MQTT keep-alive interval (default 100s).
func WithKeepAlive(d time.Duration) Option {
	return func(o *clientOptions) {
		o.keepAlive = d
	}
}

// WithCleanSession sets the CONNECT clean-session flag (default true).
// False requires a non-empty client ID.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithAutoReconnect enables or disables the background reconnect driver
// (default true).
func WithAutoReconnect(enable bool) Option {
	return func(o *clientOptions) {
		o.autoReconnect = enable
	}
}

// WithConnectTimeout bounds how long Connect waits for CONNACK (default 30s).
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithReconnectRetryDelay sets the pause between failed reconnect attempts
// (default 5s).
func WithReconnectRetryDelay(d time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectRetryDelay = d
	}
}

// WithTLS enables TLS on the transport. A nil config uses Go's TLS defaults.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		if config == nil {
			config = &tls.Config{}
		}
		o.tlsConfig = config
	}
}

// WithDialer replaces the default net.Dialer-based connection step. The
// dialer receives the scheme as network and the host:port as addr.
func WithDialer(dialer ContextDialer) Option {
	return func(o *clientOptions) {
		o.dialer = dialer
	}
}

// WithLogger sets the logger used for internal diagnostics (background
// loop state transitions, drain/recovery events, dropped messages). If
// unset, a logger discarding all output is used.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMaxTopicLength overrides the maximum accepted topic/filter length
// (default 65535).
func WithMaxTopicLength(n int) Option {
	return func(o *clientOptions) {
		o.maxTopicLength = n
	}
}

// WithMaxPayloadSize overrides the maximum outgoing PUBLISH payload size
// (default 268,435,455, the remaining-length ceiling).
func WithMaxPayloadSize(n int) Option {
	return func(o *clientOptions) {
		o.maxPayloadSize = n
	}
}

// WithMaxIncomingPacket overrides the maximum accepted incoming packet
// size (default 268,435,455).
func WithMaxIncomingPacket(n int) Option {
	return func(o *clientOptions) {
		o.maxIncomingPacket = n
	}
}

// WithReadBufferSize sets the initial size of the read buffer (default
// 1024 bytes; a size outside [2, 268435455] is replaced by the default).
func WithReadBufferSize(n int) Option {
	return func(o *clientOptions) {
		o.readBufferSize = n
	}
}

// WithWriteBufferSize sets the initial size of the write buffer (default
// 1024 bytes; a size outside [2, 268435455] is replaced by the default).
func WithWriteBufferSize(n int) Option {
	return func(o *clientOptions) {
		o.writeBufferSize = n
	}
}

// WithMaxInFlight sets the in-flight ACK table capacity (default 64). A
// Publish or Subscribe call that would exceed this fails with
// ErrAckTableFull.
func WithMaxInFlight(n int) Option {
	return func(o *clientOptions) {
		o.maxInFlight = n
	}
}

// WithWill sets the Last Will and Testament message the broker publishes
// on this client's behalf if the connection is lost ungracefully. It has
// no effect on a connection already established; it takes effect on the
// next CONNECT.
func WithWill(topic string, payload []byte, qos QoS, retained bool) Option {
	return func(o *clientOptions) {
		o.will = &willMessage{
			Topic:    topic,
			Payload:  payload,
			QoS:      qos,
			Retained: retained,
		}
	}
}

// WithOnConnect sets the hook invoked after every successful connect or
// reconnect.
func WithOnConnect(fn func(*Client)) Option {
	return func(o *clientOptions) {
		o.onConnect = fn
	}
}

// WithOnConnectionLost sets the hook invoked when the session drops to
// Disconnected, with the error that caused it.
func WithOnConnectionLost(fn func(*Client, error)) Option {
	return func(o *clientOptions) {
		o.onConnectionLost = fn
	}
}

// WithReconnectHandler sets a hook invoked immediately before each
// reconnect attempt, giving the caller a chance to refresh credentials
// (e.g. rotate a short-lived password token) before CONNECT is rebuilt.
func WithReconnectHandler(fn func(*Client)) Option {
	return func(o *clientOptions) {
		o.reconnectHandler = fn
	}
}

// WithDefaultPublishHandler sets the catch-all handler invoked for an
// incoming PUBLISH whose topic matches no registered subscription filter.
// If unset, such messages are acknowledged (to stay protocol-compliant)
// and dropped.
func WithDefaultPublishHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.defaultPublishHandler = handler
	}
}

// WithSubscription registers a subscription to install automatically on
// every connect and reconnect, before Connect returns for the first
// connect and from the background loop's resubscribe step thereafter.
func WithSubscription(topic string, qos QoS, handler MessageHandler) Option {
	return func(o *clientOptions) {
		if o.initialSubscriptions == nil {
			o.initialSubscriptions = make(map[string]subscriptionRequest)
		}
		o.initialSubscriptions[topic] = subscriptionRequest{qos: qos, handler: handler}
	}
}

func defaultOptions(server string) *clientOptions {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &clientOptions{
		server:              server,
		keepAlive:           100 * time.Second,
		cleanSession:        true,
		autoReconnect:       true,
		connectTimeout:      30 * time.Second,
		reconnectRetryDelay: 5 * time.Second,
		logger:              logger,
		readBufferSize:      defaultBufferSize,
		writeBufferSize:     defaultBufferSize,
		maxInFlight:         defaultMaxInFlight,
	}
}
