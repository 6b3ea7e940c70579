// Package credentials manages the exchange API key pair: configuration,
// the encrypted recovery file, recovery from the environment, and the live
// exchange connection built from the current pair.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/DimBertolami/latestbot/internal/config"
	"github.com/DimBertolami/latestbot/internal/crypto"
	"github.com/DimBertolami/latestbot/internal/exchange"
)

// BackupFileName is the recovery file written next to the config file.
const BackupFileName = "api_keys_backup.json"

// ErrIncomplete is returned when a key or secret is missing.
var ErrIncomplete = errors.New("credentials: API key and secret are required")

// Source tells where recovered credentials came from.
type Source string

const (
	SourceConfig Source = "config"
	SourceEnv    Source = "env"
	SourceBackup Source = "backup"
)

type backupFile struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type connBox struct {
	conn exchange.Conn
}

// Manager owns the credential pair and the live connection derived from it.
type Manager struct {
	cfg        *config.Store
	dial       exchange.Dialer
	backupPath string
	sealer     *crypto.Sealer

	mu   sync.Mutex // serializes Update
	conn atomic.Pointer[connBox]
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackup sets the recovery file path and the sealer protecting it.
// A nil sealer stores values in plain text.
func WithBackup(path string, sealer *crypto.Sealer) Option {
	return func(m *Manager) {
		m.backupPath = path
		m.sealer = sealer
	}
}

// NewManager creates a manager. The recovery file defaults to
// BackupFileName in the config file's directory.
func NewManager(cfg *config.Store, dial exchange.Dialer, opts ...Option) *Manager {
	m := &Manager{cfg: cfg, dial: dial}
	if cfg.Path() != "" {
		m.backupPath = filepath.Join(filepath.Dir(cfg.Path()), BackupFileName)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether both halves of the pair are present.
func (m *Manager) Configured() bool {
	cfg := m.cfg.Get()
	return cfg.HasCredentials()
}

// Conn returns the current live connection, or nil when none is established.
func (m *Manager) Conn() exchange.Conn {
	if box := m.conn.Load(); box != nil {
		return box.conn
	}
	return nil
}

// Connect (re)establishes the live connection from the configured pair.
// Failure leaves no connection; it is logged, not returned.
func (m *Manager) Connect(ctx context.Context) bool {
	cfg := m.cfg.Get()
	if !cfg.HasCredentials() {
		slog.Warn("API keys not configured")
		m.conn.Store(nil)
		return false
	}

	conn, err := m.dial(ctx, cfg.APIKey, cfg.APISecret)
	if err != nil {
		slog.Error("failed to create exchange client", "err", err)
		m.conn.Store(nil)
		return false
	}
	m.conn.Store(&connBox{conn: conn})
	slog.Info("connected to exchange API")
	return true
}

// Update stores a new pair in the config and the recovery file, then
// reconnects. Persistence failures are logged; the new pair takes effect in
// memory regardless.
func (m *Manager) Update(ctx context.Context, key, secret string) error {
	key, secret = strings.TrimSpace(key), strings.TrimSpace(secret)
	if key == "" || secret == "" {
		return ErrIncomplete
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.cfg.Update(func(c *config.Config) {
		c.APIKey = key
		c.APISecret = secret
	}); err != nil {
		slog.Error("error saving config", "err", err)
	}

	if err := m.writeBackup(key, secret); err != nil {
		slog.Error("failed to save API keys backup", "path", m.backupPath, "err", err)
	}

	m.Connect(ctx)
	slog.Info("updated API keys")
	return nil
}

// TestConnection probes the exchange without trading side effects.
// Any failure yields false.
func (m *Manager) TestConnection(ctx context.Context) bool {
	conn := m.Conn()
	if conn == nil {
		if !m.Configured() || !m.Connect(ctx) {
			slog.Warn("no API client available to test connection")
			return false
		}
		conn = m.Conn()
	}

	if err := conn.Ping(ctx); err != nil {
		slog.Error("API connection test failed", "err", err)
		return false
	}
	st, err := conn.ServerTime(ctx)
	if err != nil {
		slog.Error("API connection test failed", "err", err)
		return false
	}
	slog.Info("API connection successful", "server_time", st)
	return true
}

// Recover adopts the first complete pair found in the environment, then in
// the recovery file. It does nothing when a pair is already configured.
func (m *Manager) Recover(ctx context.Context) (Source, bool) {
	if m.Configured() {
		return SourceConfig, true
	}

	if key, secret, ok := config.EnvCredentials(); ok {
		if err := m.Update(ctx, key, secret); err == nil {
			slog.Info("recovered API keys from environment variables")
			return SourceEnv, true
		}
	}

	b, err := m.readBackup()
	switch {
	case err == nil && b.APIKey != "" && b.APISecret != "":
		if err := m.Update(ctx, b.APIKey, b.APISecret); err == nil {
			slog.Info("recovered API keys from backup file")
			return SourceBackup, true
		}
	case err != nil && !errors.Is(err, os.ErrNotExist):
		slog.Error("error reading backup file", "path", m.backupPath, "err", err)
	}

	slog.Warn("could not recover API keys")
	return "", false
}

func (m *Manager) writeBackup(key, secret string) error {
	if m.backupPath == "" {
		return nil
	}

	b := backupFile{APIKey: key, APISecret: secret}
	if m.sealer != nil {
		var err error
		if b.APIKey, err = m.sealer.Seal(key); err != nil {
			return err
		}
		if b.APISecret, err = m.sealer.Seal(secret); err != nil {
			return err
		}
	} else {
		slog.Warn("no encryption key available, API keys backup stored in plain text")
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.backupPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(m.backupPath, data, 0o600)
}

func (m *Manager) readBackup() (backupFile, error) {
	var b backupFile
	if m.backupPath == "" {
		return b, os.ErrNotExist
	}

	data, err := os.ReadFile(m.backupPath)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parse backup: %w", err)
	}

	if b.APIKey, err = m.open(b.APIKey); err != nil {
		return backupFile{}, err
	}
	if b.APISecret, err = m.open(b.APISecret); err != nil {
		return backupFile{}, err
	}
	return b, nil
}

// open decrypts a sealed value; plain values from older files pass through.
func (m *Manager) open(v string) (string, error) {
	if !crypto.IsSealed(v) {
		return v, nil
	}
	if m.sealer == nil {
		return "", errors.New("credentials: backup is encrypted but no key is available")
	}
	return m.sealer.Open(v)
}
