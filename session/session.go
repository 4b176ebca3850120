// Package session keeps server-side session state: who the visitor is, the CSRF token bound
// to their forms and pending flash messages.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Data is the state stored under a session token. UserID 0 means anonymous.
type Data struct {
	UserID    uint      `json:"user_id,omitempty"`
	CSRFToken string    `json:"csrf_token"`
	Flashes   []string  `json:"flashes,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (d *Data) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// AddFlash queues a message for the next rendered view.
func (d *Data) AddFlash(msg string) {
	d.Flashes = append(d.Flashes, msg)
}

// PopFlashes returns the queued messages and clears them.
func (d *Data) PopFlashes() []string {
	flashes := d.Flashes
	d.Flashes = nil
	return flashes
}

type Store interface {
	// Load returns ErrNotFound for unknown or expired tokens.
	Load(ctx context.Context, token string) (*Data, error)
	Save(ctx context.Context, token string, data *Data) error
	// Delete of an unknown token is not an error.
	Delete(ctx context.Context, token string) error
}

func NewToken() (string, error) {
	const tokenLength = 32
	tokenBytes := make([]byte, tokenLength)
	_, err := rand.Read(tokenBytes)
	if err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)
	return token, nil
}

// New returns a fresh token and session data with its own CSRF token.
func New(userID uint, ttl time.Duration, now time.Time) (string, *Data, error) {
	token, err := NewToken()
	if err != nil {
		return "", nil, err
	}
	csrf, err := NewToken()
	if err != nil {
		return "", nil, err
	}
	return token, &Data{
		UserID:    userID,
		CSRFToken: csrf,
		ExpiresAt: now.Add(ttl),
	}, nil
}
