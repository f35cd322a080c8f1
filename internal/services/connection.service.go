package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gateway "github.com/nimasrn/group-factory/internal/gateways"
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/pkg/logger"
)

const teardownTimeout = 10 * time.Second

type ChallengeStore interface {
	Put(session gateway.Session, conn gateway.Conn, phoneCodeHash string) (string, error)
	Take(token string) (*gateway.Challenge, error)
}

// ConnectionService links a platform account to a dashboard account through
// the one-time-code sign-in.
type ConnectionService struct {
	dialer      gateway.Dialer
	challenges  ChallengeStore
	connections ConnectionRepository
}

func NewConnectionService(dialer gateway.Dialer, challenges ChallengeStore, connections ConnectionRepository) *ConnectionService {
	return &ConnectionService{
		dialer:      dialer,
		challenges:  challenges,
		connections: connections,
	}
}

func validateCredentials(creds model.Credentials) (model.Credentials, error) {
	creds.APIHash = strings.TrimSpace(creds.APIHash)
	creds.PhoneNumber = strings.TrimSpace(creds.PhoneNumber)
	if creds.APIID <= 0 || creds.APIHash == "" || creds.PhoneNumber == "" {
		return creds, fmt.Errorf("%w: api_id, api_hash and phone_number are required", ErrInvalidRequest)
	}
	return creds, nil
}

// RequestVerificationCode asks the platform to text a code to the phone and
// parks the open connection until CompleteSignIn or expiry.
func (s *ConnectionService) RequestVerificationCode(ctx context.Context, creds model.Credentials) (string, error) {
	creds, err := validateCredentials(creds)
	if err != nil {
		return "", err
	}

	session := gateway.Session{APIID: creds.APIID, APIHash: creds.APIHash, PhoneNumber: creds.PhoneNumber}
	conn := s.dialer.Dial(session)

	if err := conn.Connect(ctx); err != nil {
		teardown(conn)
		return "", fmt.Errorf("connect: %w", err)
	}

	hash, err := conn.SendCode(ctx)
	if err != nil {
		teardown(conn)
		return "", fmt.Errorf("send code: %w", err)
	}

	token, err := s.challenges.Put(session, conn, hash)
	if err != nil {
		teardown(conn)
		return "", err
	}

	logger.Info("Verification code requested", "phone", creds.PhoneNumber, "api_id", creds.APIID)
	return token, nil
}

// CompleteSignIn redeems the code against the parked connection and stores the
// resulting session as the account's active connection. The parked connection
// is closed whatever the outcome.
func (s *ConnectionService) CompleteSignIn(ctx context.Context, accountID int64, creds model.Credentials, token, code string) (*model.Connection, error) {
	creds, err := validateCredentials(creds)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" || token == "" {
		return nil, fmt.Errorf("%w: challenge token and code are required", ErrInvalidRequest)
	}

	challenge, err := s.challenges.Take(token)
	if err != nil {
		if errors.Is(err, gateway.ErrChallengeNotFound) {
			return nil, ErrChallengeExpired
		}
		return nil, err
	}
	defer teardown(challenge.Conn)

	session := challenge.Session
	if session.APIID != creds.APIID || session.APIHash != creds.APIHash || session.PhoneNumber != creds.PhoneNumber {
		return nil, ErrChallengeMismatch
	}

	handle, err := challenge.Conn.SignIn(ctx, challenge.PhoneCodeHash, code)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	conn, err := s.connections.Activate(ctx, &model.Connection{
		AccountID:   accountID,
		APIID:       session.APIID,
		APIHash:     session.APIHash,
		PhoneNumber: session.PhoneNumber,
		Session:     handle,
	})
	if err != nil {
		return nil, fmt.Errorf("store connection: %w", err)
	}

	logger.Info("Messaging account connected", "account_id", accountID, "connection_id", conn.ID, "phone", creds.PhoneNumber)
	return conn, nil
}

func (s *ConnectionService) Active(ctx context.Context, accountID int64) (*model.Connection, error) {
	conn, err := s.connections.GetActive(ctx, accountID)
	if errors.Is(err, repository.ErrConnectionNotFound) {
		return nil, ErrNoActiveConnection
	}
	return conn, err
}

func (s *ConnectionService) Disconnect(ctx context.Context, accountID int64) error {
	return s.connections.Deactivate(ctx, accountID)
}

func teardown(conn gateway.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := conn.Disconnect(ctx); err != nil {
		logger.Warn("Failed to close platform connection", "error", err)
	}
}
