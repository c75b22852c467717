package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ServerInfo identifies the LDAP server a session talks to.
type ServerInfo struct {
	Host   string
	Port   int
	UseTLS bool
}

// Dialer opens a transport connection to url. The timeout bounds the TCP/TLS handshake.
type Dialer func(ctx context.Context, url string, timeout time.Duration) (Conn, error)

// dialedConn adapts *ldap.Conn to the Conn interface.
type dialedConn struct {
	*ldap.Conn
}

func (c dialedConn) Close() error {
	c.Conn.Close()
	return nil
}

// DialLDAP is the default Dialer, backed by go-ldap.
func DialLDAP(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	server, err := ParseLDAPURL(url)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: timeout}
	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if server.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: server.Host,
		}))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := ldap.DialURL(ServerInfoToURL(server), opts...)
	if err != nil {
		return nil, err
	}

	return dialedConn{Conn: conn}, nil
}

// NormalizeHost turns a bare host ("dc1.example.com" or "dc1:3389") into an LDAP URL.
// Hosts that already carry a scheme are returned unchanged.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if strings.Contains(host, "://") {
		return host
	}
	return "ldap://" + host
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}

	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}

	return nil
}

// ServerInfoToURL converts ServerInfo to LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(server.Host, strconv.Itoa(server.Port)))
}

// ParseLDAPURL parses an LDAP URL into ServerInfo.
func ParseLDAPURL(url string) (*ServerInfo, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	var useTLS bool

	switch {
	case strings.HasPrefix(strings.ToLower(url), "ldaps://"):
		useTLS = true
		url = url[len("ldaps://"):]
	case strings.HasPrefix(strings.ToLower(url), "ldap://"):
		url = url[len("ldap://"):]
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	// Drop any DN/query suffix
	if i := strings.IndexByte(url, '/'); i >= 0 {
		url = url[:i]
	}

	host := url
	port := 389 // LDAP default
	if useTLS {
		port = 636 // LDAPS default
	}

	if h, p, err := net.SplitHostPort(url); err == nil {
		host = h
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		// Bracketed IPv6 literal without a port
		host = host[1 : len(host)-1]
	}

	server := &ServerInfo{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
	}

	return server, ValidateServerInfo(server)
}
