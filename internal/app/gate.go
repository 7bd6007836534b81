package app

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrGateLocked = errors.New("incorrect password")

// Gate guards the preview site with a shared password. The plain password is
// hashed once at start and never kept.
type Gate struct {
	hash []byte
}

// NewGate hashes password. An empty password disables the gate.
func NewGate(password string) (*Gate, error) {
	if password == "" {
		return &Gate{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Gate{hash: hash}, nil
}

func (g *Gate) Enabled() bool { return len(g.hash) > 0 }

func (g *Gate) Unlock(password string) error {
	if !g.Enabled() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return ErrGateLocked
	}
	return nil
}
