package gateway

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/nimasrn/group-factory/pkg/prom"
)

var ErrChallengeNotFound = errors.New("verification challenge not found or expired")

// DefaultChallengeTTL is how long a sent code may be redeemed.
const DefaultChallengeTTL = 5 * time.Minute

const disposeTimeout = 10 * time.Second

const connPurposeSignIn = "sign_in"

// Challenge is a sign-in that has sent a code and waits for the user to type it.
type Challenge struct {
	Token         string
	Session       Session
	Conn          Conn
	PhoneCodeHash string
	CreatedAt     time.Time

	timer *time.Timer
}

// ChallengeStore keeps pending sign-ins in process memory, keyed by
// (api id, phone number). A restart drops every pending sign-in.
type ChallengeStore struct {
	ttl time.Duration

	mu      sync.Mutex
	byKey   map[string]*Challenge
	byToken map[string]string
	closed  bool
}

func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeStore{
		ttl:     ttl,
		byKey:   make(map[string]*Challenge),
		byToken: make(map[string]string),
	}
}

func challengeKey(session Session) string {
	return strconv.Itoa(session.APIID) + ":" + session.PhoneNumber
}

// Put stores a pending sign-in and returns its token. A previous challenge for
// the same key is replaced and its connection disposed.
func (s *ChallengeStore) Put(session Session, conn Conn, phoneCodeHash string) (string, error) {
	challenge := &Challenge{
		Token:         uuid.NewString(),
		Session:       session,
		Conn:          conn,
		PhoneCodeHash: phoneCodeHash,
		CreatedAt:     time.Now(),
	}
	key := challengeKey(session)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New("challenge store closed")
	}
	previous := s.removeLocked(key)
	s.byKey[key] = challenge
	s.byToken[challenge.Token] = key
	challenge.timer = time.AfterFunc(s.ttl, func() { s.expire(key, challenge.Token) })
	s.mu.Unlock()
	prom.GatewayConnOpened(connPurposeSignIn)

	if previous != nil {
		dispose(previous, "replaced")
	}
	return challenge.Token, nil
}

// Take removes and returns the challenge for token. The caller owns the
// returned connection from then on.
func (s *ChallengeStore) Take(token string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byToken[token]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return s.removeLocked(key), nil
}

func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// Close disposes every pending challenge.
func (s *ChallengeStore) Close() {
	s.mu.Lock()
	s.closed = true
	pending := make([]*Challenge, 0, len(s.byKey))
	for key := range s.byKey {
		pending = append(pending, s.removeLocked(key))
	}
	s.mu.Unlock()

	for _, c := range pending {
		dispose(c, "shutdown")
	}
}

func (s *ChallengeStore) expire(key, token string) {
	s.mu.Lock()
	current, ok := s.byKey[key]
	if !ok || current.Token != token {
		s.mu.Unlock()
		return
	}
	challenge := s.removeLocked(key)
	s.mu.Unlock()

	dispose(challenge, "expired")
}

func (s *ChallengeStore) removeLocked(key string) *Challenge {
	challenge, ok := s.byKey[key]
	if !ok {
		return nil
	}
	challenge.timer.Stop()
	delete(s.byKey, key)
	delete(s.byToken, challenge.Token)
	prom.GatewayConnClosed(connPurposeSignIn)
	return challenge
}

func dispose(c *Challenge, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()

	if err := c.Conn.Disconnect(ctx); err != nil {
		logger.Warn("Failed to dispose pending sign-in", "phone", c.Session.PhoneNumber, "reason", reason, "error", err)
		return
	}
	logger.Debug("Pending sign-in disposed", "phone", c.Session.PhoneNumber, "reason", reason)
}
