// Package locker holds the per-browser state: whether the passphrase was
// given and which file is currently loaded.
package locker

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"musiclocker-backend/config"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator compares a typed passphrase with the configured secret.
type Authenticator struct {
	mu         sync.RWMutex
	passphrase []byte
	hash       []byte
	delay      time.Duration
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{}
	a.Update(cfg)
	return a
}

// Update swaps the secret, used on config reload.
func (a *Authenticator) Update(cfg config.AuthConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.passphrase = []byte(cfg.Passphrase)
	a.hash = nil
	if cfg.PassphraseBcrypt != "" {
		a.hash = []byte(cfg.PassphraseBcrypt)
	}
	a.delay = cfg.LoginDelay
	slog.Info("auth passphrase updated", "bcrypt", a.hash != nil)
}

// Check is an exact, case-sensitive comparison.
func (a *Authenticator) Check(passphrase string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.hash != nil {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(passphrase)) == nil
	}
	return subtle.ConstantTimeCompare(a.passphrase, []byte(passphrase)) == 1
}

// Verify waits for the configured login delay, then checks the passphrase.
func (a *Authenticator) Verify(ctx context.Context, passphrase string) (bool, error) {
	a.mu.RLock()
	delay := a.delay
	a.mu.RUnlock()

	if err := sleep(ctx, delay); err != nil {
		return false, err
	}
	return a.Check(passphrase), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
