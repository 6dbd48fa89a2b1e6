package mqttc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/student/mqttc/internal/packets"
	"github.com/student/mqttc/internal/timer"
)

// ClientStats are running counters of protocol activity, useful for
// diagnostics and tests. They are updated from the background loop and
// from Publish/Subscribe/Unsubscribe calls, so read them with GetStats
// rather than copying the struct directly.
type ClientStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	Reconnects      uint64
}

// Client is a single MQTT session: one transport connection, one
// background I/O loop, and the state that loop shares with the
// Publish/Subscribe/Unsubscribe calls made from other goroutines.
type Client struct {
	opts *clientOptions

	// writeMu serializes the sequence (build frame -> write to conn ->
	// insert ACK record) so a response can never race ahead of the
	// record that resolves it, and so concurrent callers never
	// interleave partial frames on the wire.
	writeMu sync.Mutex

	// globalMu guards session state, the packet-id counter, the
	// transport handle, and the keep-alive deadlines.
	globalMu sync.Mutex

	conn     Transport
	state    ClientState
	packetID uint16

	// willMu guards opts.will against a concurrent SetWill call. It is
	// distinct from globalMu because it is read only while building a
	// CONNECT packet (connectOnce, which does not otherwise need it) and
	// SetWill has no bearing on session state.
	willMu sync.RWMutex

	subs     *subscriptionTable
	ackTable *ackTable

	readBuf  *packetBuffer
	writeBuf *packetBuffer

	lastSent        *timer.Deadline
	lastReceived    *timer.Deadline
	pingOutstanding atomic.Bool

	loopStarted bool
	stop        chan struct{}
	loopDone    chan struct{}

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	reconnects      atomic.Uint64
}

// NewClient constructs a Client against server (e.g. "tcp://host:1883" or
// "tls://host:8883") without connecting. Call Connect to establish the
// session.
func NewClient(server string, opts ...Option) (*Client, error) {
	if server == "" {
		return nil, fmt.Errorf("mqttc: %w: server address", ErrNullArg)
	}

	o := defaultOptions(server)
	for _, opt := range opts {
		opt(o)
	}

	if o.clientID == "" {
		if !o.cleanSession {
			return nil, fmt.Errorf("mqttc: %w: client ID required when CleanSession is false", ErrNullArg)
		}
		o.clientID = generateClientID()
	}

	c := &Client{
		opts:     o,
		state:    StateInitialized,
		subs:     newSubscriptionTable(),
		ackTable: newAckTable(o.maxInFlight),
		readBuf:  newPacketBuffer(o.readBufferSize),
		writeBuf: newPacketBuffer(o.writeBufferSize),
	}

	for topic, req := range o.initialSubscriptions {
		c.subs.install(topic, req.qos, req.handler)
	}

	return c, nil
}

// Dial constructs a Client and connects it in one step.
func Dial(server string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), server, opts...)
}

// DialContext constructs a Client and connects it, bounding the initial
// connect attempt by ctx in addition to WithConnectTimeout.
func DialContext(ctx context.Context, server string, opts ...Option) (*Client, error) {
	c, err := NewClient(server, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) logger() *logrus.Logger {
	return c.opts.logger
}

// State reports the session's current lifecycle state.
func (c *Client) State() ClientState {
	c.globalMu.Lock()
	defer c.globalMu.Unlock()
	return c.state
}

// IsConnected reports whether the session is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// SetWill replaces the Last Will and Testament the broker will publish on
// this client's behalf. It has no effect on a connection already
// established — matching WithWill's documented behavior — and only takes
// effect on the next CONNECT built by connectOnce.
func (c *Client) SetWill(topic string, payload []byte, qos QoS, retained bool) {
	c.willMu.Lock()
	defer c.willMu.Unlock()
	c.opts.will = &willMessage{Topic: topic, Payload: payload, QoS: qos, Retained: retained}
}

// ClearWill removes any configured Last Will and Testament; like SetWill,
// it takes effect starting with the next CONNECT.
func (c *Client) ClearWill() {
	c.willMu.Lock()
	defer c.willMu.Unlock()
	c.opts.will = nil
}

// GetStats returns a snapshot of the client's running protocol counters.
func (c *Client) GetStats() ClientStats {
	return ClientStats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		Reconnects:      c.reconnects.Load(),
	}
}

// Connect establishes the transport and performs the CONNECT/CONNACK
// handshake. On the first successful connect it spawns the background
// I/O loop; later calls (after a manual Disconnect) reuse the same
// Client, establishing a fresh session.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.connectOnce(ctx); err != nil {
		return err
	}

	c.globalMu.Lock()
	alreadyRunning := c.loopStarted
	if alreadyRunning {
		// A loop that exited after a Disconnect is started afresh.
		select {
		case <-c.loopDone:
			alreadyRunning = false
		default:
		}
	}
	if !alreadyRunning {
		c.loopStarted = true
		c.stop = make(chan struct{})
		c.loopDone = make(chan struct{})
	}
	c.globalMu.Unlock()

	if !alreadyRunning {
		go c.run()
	}

	c.subscribeInitial()

	if c.opts.onConnect != nil {
		go c.opts.onConnect(c)
	}
	return nil
}

// subscribeInitial issues a SUBSCRIBE for every filter registered via
// WithSubscription. The filter's handler was already installed into the
// subscription table at NewClient time (so a message racing in just
// after CONNACK still finds a route); this only tells the broker about
// it for a connection that hasn't announced it yet.
func (c *Client) subscribeInitial() {
	for topic, req := range c.opts.initialSubscriptions {
		c.globalMu.Lock()
		id := c.nextPacketIDLocked()
		c.globalMu.Unlock()
		pkt := &packets.SubscribePacket{PacketID: id, Topics: []string{topic}, QoS: []uint8{uint8(req.qos)}}
		rec := &ackRecord{kind: ackSuback, packetID: id, deadline: c.newRetryDeadline()}
		_ = c.sendAndRecord(pkt, rec)
	}
}

// connectOnce performs one dial+CONNECT+CONNACK attempt. On success it
// installs the new transport and moves to Connected; on failure the
// session returns to Initialized (or stays Disconnected, for a
// reconnect attempt) and no transport is retained.
func (c *Client) connectOnce(ctx context.Context) (sessionPresent bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	conn, err := dial(dialCtx, c.opts)
	if err != nil {
		return false, fmt.Errorf("mqttc: %w: %v", ErrConnectFailed, err)
	}

	connectPkt := c.buildConnectPacket()
	ack, err := performHandshake(dialCtx, conn, connectPkt)
	if err != nil {
		conn.Close()
		return false, err
	}
	if ack.ReturnCode != packets.ConnAccepted {
		conn.Close()
		return false, connectErrorFor(ack.ReturnCode)
	}

	c.globalMu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.lastSent = timer.New(c.opts.keepAlive)
	c.lastReceived = timer.New(c.opts.keepAlive)
	c.globalMu.Unlock()
	c.pingOutstanding.Store(false)

	return ack.SessionPresent, nil
}

// Disconnect sends DISCONNECT, closes the transport, and stops the
// background loop, waiting for it to exit or for ctx to be cancelled.
func (c *Client) Disconnect(ctx context.Context) error {
	c.globalMu.Lock()
	conn := c.conn
	c.state = StateCleanSession
	loopDone := c.loopDone
	c.globalMu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_, _ = (&packets.DisconnectPacket{}).WriteTo(conn)
		conn.Close()
		c.writeMu.Unlock()
	}

	if loopDone == nil {
		return nil
	}
	select {
	case <-loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newRetryDeadline returns a deadline for a freshly recorded ACK
// expectation, using the connect timeout as the retransmission window.
func (c *Client) newRetryDeadline() *timer.Deadline {
	return timer.New(c.opts.connectTimeout)
}

// sendLocked serializes pkt and writes it to the current transport under
// the write lock, refreshing the last-sent deadline on success.
func (c *Client) sendLocked(pkt packets.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(pkt)
}

// writeLocked assumes the caller already holds writeMu.
func (c *Client) writeLocked(pkt packets.Packet) error {
	c.globalMu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.globalMu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	n, err := pkt.WriteTo(conn)
	if err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("mqttc: %w: %v", ErrSendFailed, err)
	}

	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
	c.globalMu.Lock()
	if c.lastSent != nil {
		c.lastSent.Set(c.opts.keepAlive)
	}
	c.globalMu.Unlock()
	return nil
}

// sendAndRecord holds the write lock across serialize -> transport-write
// -> ACK-record-insert, so a response for rec can never be observed by
// the background loop before the record exists to receive it.
func (c *Client) sendAndRecord(pkt packets.Packet, rec *ackRecord) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.writeLocked(pkt); err != nil {
		return err
	}
	return c.ackTable.record(rec)
}

// markDisconnected drops the session to Disconnected after a transport
// failure, releasing the transport and notifying onConnectionLost. It is
// idempotent: a session already past Connected is left alone.
func (c *Client) markDisconnected(cause error) {
	c.globalMu.Lock()
	if c.state != StateConnected {
		c.globalMu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.globalMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if c.opts.onConnectionLost != nil {
		go c.opts.onConnectionLost(c, cause)
	}
}

// run is the single background I/O loop: while connected it reads and
// dispatches packets and checks keep-alive; while disconnected (and
// auto-reconnect is enabled) it drives reconnection. It exits when the
// session reaches CleanSession.
func (c *Client) run() {
	defer close(c.loopDone)

	for {
		c.globalMu.Lock()
		state := c.state
		c.globalMu.Unlock()

		switch state {
		case StateInvalid:
			return

		case StateCleanSession:
			c.globalMu.Lock()
			conn := c.conn
			c.conn = nil
			c.globalMu.Unlock()
			if conn != nil {
				conn.Close()
			}
			c.ackTable.clear()
			c.subs.clear()
			c.globalMu.Lock()
			c.state = StateInvalid
			c.globalMu.Unlock()
			return

		case StateConnected:
			if err := c.step(); err != nil {
				c.markDisconnected(err)
			}

		case StateDisconnected, StateInitialized:
			if !c.opts.autoReconnect {
				return
			}
			c.reconnect()
		}

		select {
		case <-c.stop:
			return
		default:
		}
	}
}

// step reads and dispatches exactly one packet (or a keep-alive tick if
// none arrives before the read deadline), then runs the keep-alive check.
func (c *Client) step() error {
	c.globalMu.Lock()
	conn := c.conn
	c.globalMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	pkt, err := c.readOnePacket(conn)
	if err != nil {
		if isTimeout(err) {
			return c.checkKeepAlive()
		}
		if err == ErrBufferTooShort {
			c.logger().Warn("dropped oversized incoming packet")
			return c.checkKeepAlive()
		}
		return err
	}

	c.packetsReceived.Add(1)
	c.globalMu.Lock()
	if c.lastReceived != nil {
		c.lastReceived.Set(c.opts.keepAlive)
	}
	c.globalMu.Unlock()

	if err := c.dispatch(pkt); err != nil {
		return err
	}

	c.ackTable.scan(scanDeadline, c.scanCallback)

	return c.checkKeepAlive()
}

// scanCallback is the fn passed to ackTable.scan from both step and
// reconnect. A PUBACK/PUBREC/PUBREL record carries a retained frame and is
// simply resent. A SUBACK/UNSUBACK record never carries one (subscribe.go
// never sets wire for them), so retransmit would silently no-op on it
// forever; instead it is abandoned outright — the broker never answered in
// time, so the pending subscribe/unsubscribe is dropped along with the
// record rather than left to exhaust the table. An inbound PUBREL
// expectation also carries no frame and is not time-bound the same way; it
// is left in place for dispatchPubrel to resolve.
func (c *Client) scanCallback(rec *ackRecord) bool {
	switch rec.kind {
	case ackSuback, ackUnsuback:
		c.ackTable.unrecord(rec.kind, rec.packetID)
	default:
		c.retransmit(rec)
	}
	return true
}

// retransmit resends the frame attached to an expired ACK record,
// re-arming its deadline. Records with no retained frame (an inbound
// PUBREL expectation, a SUBSCRIBE or UNSUBSCRIBE) are left untouched.
func (c *Client) retransmit(rec *ackRecord) {
	if len(rec.wire) == 0 {
		return
	}
	c.globalMu.Lock()
	conn := c.conn
	c.globalMu.Unlock()
	if conn == nil {
		return
	}

	c.writeMu.Lock()
	_, err := conn.Write(rec.wire)
	c.writeMu.Unlock()
	if err != nil {
		c.markDisconnected(err)
		return
	}
	rec.deadline = c.newRetryDeadline()
}

func (c *Client) checkKeepAlive() error {
	c.globalMu.Lock()
	lastSent, lastReceived := c.lastSent, c.lastReceived
	c.globalMu.Unlock()
	if lastSent == nil || lastReceived == nil {
		return nil
	}

	if !lastReceived.Expired() {
		return nil
	}

	if c.pingOutstanding.Load() {
		return fmt.Errorf("mqttc: keep-alive timeout: %w", ErrNotConnected)
	}

	if err := c.sendLocked(&packets.PingreqPacket{}); err != nil {
		return err
	}
	c.pingOutstanding.Store(true)
	return nil
}

// reconnect drives one reconnect attempt from the background loop: it
// invokes the reconnect hook, attempts connectOnce, and on success
// resubscribes every confirmed filter and kicks every pending ACK
// record back onto the wire.
func (c *Client) reconnect() {
	if c.opts.reconnectHandler != nil {
		c.opts.reconnectHandler(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.connectTimeout)
	defer cancel()

	sessionPresent, err := c.connectOnce(ctx)
	if err != nil {
		c.logger().WithError(err).Debug("reconnect attempt failed")
		select {
		case <-time.After(c.opts.reconnectRetryDelay):
		case <-c.stop:
		}
		return
	}

	c.reconnects.Add(1)

	if c.opts.cleanSession || !sessionPresent {
		for topic, req := range c.opts.initialSubscriptions {
			c.subs.install(topic, req.qos, req.handler)
		}
	}

	for _, sub := range c.subs.all() {
		c.globalMu.Lock()
		id := c.nextPacketIDLocked()
		c.globalMu.Unlock()
		pkt := &packets.SubscribePacket{PacketID: id, Topics: []string{sub.filter}, QoS: []uint8{uint8(sub.qos)}}
		_ = c.sendLocked(pkt)
	}

	c.ackTable.scan(scanImmediate, c.scanCallback)

	if c.opts.onConnect != nil {
		go c.opts.onConnect(c)
	}
}

func (c *Client) readOnePacket(conn Transport) (packets.Packet, error) {
	return readPacket(conn, c.readBuf, c.opts.maxIncomingPacket)
}

func isTimeout(err error) bool {
	type timeoutErr interface {
		Timeout() bool
	}
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}
