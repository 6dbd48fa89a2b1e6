package mqttc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
)

// Transport is the byte-stream a session is carried over. The client
// depends only on this interface; plain TCP and TLS are provided, and any
// other stream transport (WebSocket, Unix socket, an in-process pipe for
// testing) can be supplied via WithDialer without the core module taking
// a dependency on it.
type Transport interface {
	net.Conn
}

// dial establishes the transport connection for opts.server, honoring a
// custom dialer if one was configured, and falls back to net.Dialer/
// tls.Dialer keyed off the URL scheme otherwise.
func dial(ctx context.Context, opts *clientOptions) (Transport, error) {
	if opts.dialer != nil {
		network := "tcp"
		addr := opts.server
		if u, err := url.Parse(opts.server); err == nil && u.Scheme != "" {
			network = u.Scheme
			addr = u.Host
		}
		conn, err := opts.dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("mqttc: custom dialer failed: %w", err)
		}
		return conn, nil
	}

	u, err := url.Parse(opts.server)
	if err != nil {
		return nil, fmt.Errorf("mqttc: invalid server URL: %w", err)
	}

	if u.Port() == "" {
		switch u.Scheme {
		case "tls", "ssl", "mqtts":
			u.Host = net.JoinHostPort(u.Host, "8883")
		case "tcp", "mqtt", "":
			u.Host = net.JoinHostPort(u.Host, "1883")
		}
	}

	useTLS := u.Scheme == "tls" || u.Scheme == "ssl" || u.Scheme == "mqtts" || opts.tlsConfig != nil
	if !useTLS && u.Scheme != "tcp" && u.Scheme != "mqtt" && u.Scheme != "" {
		return nil, fmt.Errorf("mqttc: unsupported scheme %q (supported: tcp, mqtt, tls, ssl, mqtts)", u.Scheme)
	}

	var conn net.Conn
	if useTLS {
		tlsConfig := opts.tlsConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", u.Host)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", u.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("mqttc: dial failed: %w", err)
	}
	return conn, nil
}
