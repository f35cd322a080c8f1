package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryVerificationCode is the only code the in-memory platform accepts.
const MemoryVerificationCode = "12345"

// MemoryChannel is a channel created on the in-memory platform.
type MemoryChannel struct {
	Channel
	Title     string
	Megagroup bool
	Invite    string
	Messages  []string
}

// MemoryPlatform is an in-process stand-in for the messaging platform, used
// for local runs without a bridge and in tests. The Fail* hooks inject errors
// per call; a nil hook never fails.
type MemoryPlatform struct {
	FailConnect func() error
	FailCreate  func(title string) error
	FailInvite  func(handle string) error
	FailSend    func(target, body string) error

	mu          sync.Mutex
	seq         int64
	channels    map[string]*MemoryChannel
	order       []string
	codes       map[string]string
	revoked     map[string]bool
	open        int
	disconnects int
}

func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{
		channels: make(map[string]*MemoryChannel),
		codes:    make(map[string]string),
		revoked:  make(map[string]bool),
	}
}

func (p *MemoryPlatform) Dial(session Session) Conn {
	return &memoryConn{platform: p, session: session}
}

func (p *MemoryPlatform) RevokeSession(handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[handle] = true
}

// Channels returns created channels in creation order.
func (p *MemoryPlatform) Channels() []MemoryChannel {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]MemoryChannel, 0, len(p.order))
	for _, handle := range p.order {
		c := *p.channels[handle]
		c.Messages = append([]string(nil), c.Messages...)
		out = append(out, c)
	}
	return out
}

// OpenConnections counts connections that were opened and not yet disconnected.
func (p *MemoryPlatform) OpenConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *MemoryPlatform) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

type memoryConn struct {
	platform  *MemoryPlatform
	session   Session
	connected bool
}

func (c *memoryConn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := c.platform
	if p.FailConnect != nil {
		if err := p.FailConnect(); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c.session.Handle != "" && p.revoked[c.session.Handle] {
		return ErrUnauthorized
	}
	if !c.connected {
		c.connected = true
		p.open++
	}
	return nil
}

func (c *memoryConn) SendCode(ctx context.Context) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}
	hash := uuid.NewString()

	c.platform.mu.Lock()
	c.platform.codes[hash] = MemoryVerificationCode
	c.platform.mu.Unlock()
	return hash, nil
}

func (c *memoryConn) SignIn(ctx context.Context, phoneCodeHash, code string) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	c.platform.mu.Lock()
	defer c.platform.mu.Unlock()

	expected, ok := c.platform.codes[phoneCodeHash]
	if !ok || expected != code {
		return "", fmt.Errorf("%w: invalid verification code", ErrRejected)
	}
	delete(c.platform.codes, phoneCodeHash)
	return "mem-session-" + uuid.NewString(), nil
}

func (c *memoryConn) CreateChannel(ctx context.Context, title string, megagroup bool) (*Channel, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	p := c.platform
	if p.FailCreate != nil {
		if err := p.FailCreate(title); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	channel := &MemoryChannel{
		Channel: Channel{
			ExternalID: fmt.Sprintf("-100%d", 1000000+p.seq),
			Handle:     fmt.Sprintf("channel-%d", p.seq),
		},
		Title:     title,
		Megagroup: megagroup,
	}
	p.channels[channel.Handle] = channel
	p.order = append(p.order, channel.Handle)

	result := channel.Channel
	return &result, nil
}

func (c *memoryConn) ExportInvite(ctx context.Context, handle string) (string, error) {
	if err := c.ready(ctx); err != nil {
		return "", err
	}
	p := c.platform
	if p.FailInvite != nil {
		if err := p.FailInvite(handle); err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	channel, ok := p.channels[handle]
	if !ok {
		return "", fmt.Errorf("%w: unknown channel %s", ErrRejected, handle)
	}
	channel.Invite = "https://t.me/+" + uuid.NewString()[:12]
	return channel.Invite, nil
}

func (c *memoryConn) SendMessage(ctx context.Context, target, body string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	p := c.platform
	if p.FailSend != nil {
		if err := p.FailSend(target, body); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	channel, ok := p.channels[target]
	if !ok {
		return fmt.Errorf("%w: unknown channel %s", ErrRejected, target)
	}
	channel.Messages = append(channel.Messages, body)
	return nil
}

func (c *memoryConn) Disconnect(ctx context.Context) error {
	c.platform.mu.Lock()
	defer c.platform.mu.Unlock()

	if c.connected {
		c.connected = false
		c.platform.open--
		c.platform.disconnects++
	}
	return nil
}

func (c *memoryConn) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}
