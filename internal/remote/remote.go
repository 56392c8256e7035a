// Package remote opens the SSH session the deploy step runs through. One
// blocking session per deploy; cancellation comes from the caller's context.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/deckhandhq/deckhand/internal/executor"
	"golang.org/x/crypto/ssh"
)

// Config describes the deploy target host.
type Config struct {
	Host string
	Port int
	User string
	Key  []byte
}

// Client is an open SSH connection to the deploy target.
type Client struct {
	conn *ssh.Client
}

// Dial opens an SSH connection using private-key authentication.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("remote host and user are required")
	}

	signer, err := ssh.ParsePrivateKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deploy key: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Deploy targets are provisioned by the operator; first-contact host
		// key pinning is out of scope for the pipeline.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}

	return &Client{conn: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// Run executes a single command on the remote host and waits for it.
func (c *Client) Run(ctx context.Context, command string) (*executor.Result, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open remote session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return nil, fmt.Errorf("failed to start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, fmt.Errorf("remote command cancelled: %w", ctx.Err())
	case err = <-done:
	}

	result := &executor.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
		} else {
			result.ExitCode = -1
		}
		return result, fmt.Errorf("remote command failed: %w", err)
	}

	return result, nil
}

// Close tears down the SSH connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
