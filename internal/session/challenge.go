package session

import "sync"

// PairingChallenge holds the latest unconsumed QR code.
type PairingChallenge struct {
	mu   sync.RWMutex
	code string
}

func NewPairingChallenge() *PairingChallenge {
	return &PairingChallenge{}
}

func (p *PairingChallenge) Set(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = code
}

func (p *PairingChallenge) Clear() {
	p.Set("")
}

// Current returns the pending code, if any.
func (p *PairingChallenge) Current() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.code, p.code != ""
}
