package mail

import (
	"context"
	"sync"

	"github.com/MrEthical07/otpgate"
)

// MemorySender keeps every mail it is given. It can be told to fail.
type MemorySender struct {
	mu   sync.Mutex
	sent []otpgate.Mail
	err  error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, m otpgate.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (s *MemorySender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySender) Sent() []otpgate.Mail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]otpgate.Mail(nil), s.sent...)
}

// Last returns the most recent mail addressed to recipient.
func (s *MemorySender) Last(recipient string) (otpgate.Mail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].To == recipient {
			return s.sent[i], true
		}
	}
	return otpgate.Mail{}, false
}
