package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// New returns an http.Client whose dial is bounded by connectTimeout. The wait
// for response headers and every later read of the body are each bounded by
// readTimeout, so a long stream that keeps producing bytes is never cut off.
func New(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           idleDial(dialer, readTimeout),
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
}

func idleDial(dialer *net.Dialer, readTimeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil || readTimeout <= 0 {
			return conn, err
		}
		return &idleConn{Conn: conn, timeout: readTimeout}, nil
	}
}

// idleConn pushes the read deadline forward before every read.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}
