package notifications

import (
	"context"
	"errors"
	"sync"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory TokenStore that records every call.
type fakeStore struct {
	mu          sync.Mutex
	tokens      map[string][]string
	listErr     error
	deleteErr   map[string]error
	deleteCalls map[string]int
}

func newFakeStore(tokens map[string][]string) *fakeStore {
	return &fakeStore{
		tokens:      tokens,
		deleteErr:   map[string]error{},
		deleteCalls: map[string]int{},
	}
}

func (s *fakeStore) ListTokens(_ context.Context, uid string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.tokens[uid]...), nil
}

func (s *fakeStore) DeleteToken(_ context.Context, uid, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls[token]++
	if err := s.deleteErr[token]; err != nil {
		return err
	}
	kept := s.tokens[uid][:0]
	for _, t := range s.tokens[uid] {
		if t != token {
			kept = append(kept, t)
		}
	}
	s.tokens[uid] = kept
	return nil
}

// fakeSender answers every token with the code in codes ("" means success).
type fakeSender struct {
	mu     sync.Mutex
	codes  map[string]string
	err    error
	calls  [][]string
	events []NotificationEvent
}

func (s *fakeSender) SendMulticast(_ context.Context, tokens []string, event NotificationEvent) ([]SendOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), tokens...))
	s.events = append(s.events, event)
	if s.err != nil {
		return nil, s.err
	}

	outcomes := make([]SendOutcome, len(tokens))
	for i, token := range tokens {
		code := s.codes[token]
		outcomes[i] = SendOutcome{Token: token, Success: code == "", ErrorCode: code}
		if code == "" {
			outcomes[i].MessageID = "msg-" + token
		}
	}
	return outcomes, nil
}
