package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yoanbernabeu/shellwire/internal/constants"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Connection defaults
const (
	DefaultTimeout      = constants.DefaultSSHTimeout
	DefaultMaxRetries   = constants.DefaultSSHRetries
	DefaultInitialDelay = constants.DefaultInitialDelay
	DefaultMaxDelay     = constants.DefaultMaxDelay
)

type clientOptions struct {
	timeout      time.Duration
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	keyData      []byte
	knownHosts   []byte
	insecure     bool
	log          *zap.SugaredLogger
}

// ClientOption configures a Client
type ClientOption func(*clientOptions)

// WithTimeout sets the TCP dial and handshake timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetries sets how many times a failed dial is retried
func WithRetries(n int) ClientOption {
	return func(o *clientOptions) { o.maxRetries = n }
}

// WithInitialDelay sets the delay before the first retry
func WithInitialDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.initialDelay = d }
}

// WithMaxDelay caps the exponential backoff between retries
func WithMaxDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.maxDelay = d }
}

// WithKeyData uses the given PEM private key instead of a key file
func WithKeyData(pem []byte) ClientOption {
	return func(o *clientOptions) { o.keyData = pem }
}

// WithKnownHostsData verifies host keys against known_hosts content instead
// of ~/.ssh/known_hosts
func WithKnownHostsData(data []byte) ClientOption {
	return func(o *clientOptions) { o.knownHosts = data }
}

// WithInsecureHostKey disables host key verification (not recommended)
func WithInsecureHostKey() ClientOption {
	return func(o *clientOptions) { o.insecure = true }
}

// WithLogger logs connection attempts and retries
func WithLogger(l *zap.Logger) ClientOption {
	return func(o *clientOptions) { o.log = l.Named("ssh").Sugar() }
}

// Client represents an SSH client connection
type Client struct {
	Host    string
	User    string
	Port    int
	KeyPath string

	opts   clientOptions
	config *ssh.ClientConfig
	client *ssh.Client
}

// NewClient creates a new SSH client
func NewClient(host, user string, port int, keyPath string, opts ...ClientOption) *Client {
	if port == 0 {
		port = constants.DefaultSSHPort
	}
	o := clientOptions{
		timeout:      DefaultTimeout,
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
		log:          zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		Host:    host,
		User:    user,
		Port:    port,
		KeyPath: keyPath,
		opts:    o,
	}
}

// Connect establishes an SSH connection, retrying with exponential backoff
func (c *Client) Connect() error {
	signer, err := c.loadPrivateKey()
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("host key verification failed: %w", err)
	}

	c.config = &ssh.ClientConfig{
		User: c.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.timeout,
	}

	return c.dial()
}

// Reconnect closes the current connection and dials again with the
// configuration of the last successful Connect
func (c *Client) Reconnect() error {
	if c.config == nil {
		return fmt.Errorf("cannot reconnect: not connected before")
	}
	if err := c.Close(); err != nil {
		c.opts.log.Debugw("closing stale connection failed", "error", err)
	}
	return c.dial()
}

func (c *Client) dial() error {
	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)

	var lastErr error
	for attempt := 0; attempt <= c.opts.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.opts.log.Infow("retrying connection", "addr", addr, "attempt", attempt, "delay", delay, "error", lastErr)
			time.Sleep(delay)
		}

		client, err := ssh.Dial("tcp", addr, c.config)
		if err == nil {
			c.client = client
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed to connect to %s after %d attempts: %w", addr, c.opts.maxRetries+1, lastErr)
}

// backoffDelay returns the delay before retry number attempt (1-based)
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.maxDelay {
			return c.opts.maxDelay
		}
	}
	return min(delay, c.opts.maxDelay)
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client != nil
}

// loadPrivateKey loads the SSH private key
func (c *Client) loadPrivateKey() (ssh.Signer, error) {
	if len(c.opts.keyData) > 0 {
		signer, err := ssh.ParsePrivateKey(c.opts.keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s_SSH_KEY: %w", constants.EnvPrefix, err)
		}
		return signer, nil
	}

	keyPath := c.KeyPath
	if keyPath == "" {
		keys, err := DiscoverSSHKeys()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !k.IsEncrypted {
				keyPath = k.Path
				break
			}
		}
		if keyPath == "" {
			return nil, fmt.Errorf("no usable SSH key found in ~/.ssh (set %s_SSH_KEY for CI/CD)", constants.EnvPrefix)
		}
		c.opts.log.Debugw("using discovered key", "path", keyPath)
	}

	key, err := os.ReadFile(expandHome(keyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}

// expandHome expands a leading ~/ in path
func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// hostKeyCallback returns the host key callback function
// SECURITY: This function requires a valid known_hosts file by default
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if len(c.opts.knownHosts) > 0 {
		// knownhosts.New only reads files
		tmpFile, err := os.CreateTemp("", "known_hosts")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp known_hosts: %w", err)
		}
		defer os.Remove(tmpFile.Name())

		if _, err := tmpFile.Write(c.opts.knownHosts); err != nil {
			tmpFile.Close()
			return nil, fmt.Errorf("failed to write temp known_hosts: %w", err)
		}
		tmpFile.Close()

		callback, err := knownhosts.New(tmpFile.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s_KNOWN_HOSTS: %w", constants.EnvPrefix, err)
		}
		return callback, nil
	}

	if c.opts.insecure {
		c.opts.log.Warnw("host key verification disabled", "host", c.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	return defaultKnownHosts(c.Host, c.User, c.Port)
}

// NewSession creates a new SSH session
func (c *Client) NewSession() (*ssh.Session, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.client.NewSession()
}
