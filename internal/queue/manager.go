package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/utils"
)

// State of the connection manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "disconnected"
}

// ErrClosed is returned by operations on a manager that has been closed.
var ErrClosed = errors.New("queue: connection manager closed")

// ErrNacked is returned when the broker refuses a published message.
var ErrNacked = errors.New("queue: publish not confirmed by broker")

// QueueStats is a snapshot of one queue's depth.
type QueueStats struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// Manager owns the single process-wide broker connection.  Publishers share
// one confirm-mode channel; every consumer gets a channel of its own.  When
// the connection drops, a watcher moves the manager back to connecting and
// redials with exponential backoff, re-running the topology declaration
// before marking it connected again.
type Manager struct {
	cfg  config.QueueConfig
	log  *logrus.Entry
	dial func(url string) (*amqp.Connection, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	state   State
	ready   chan struct{} // closed while connected
	setup   func(Declarer) error
	stopped chan struct{}
	once    sync.Once
}

// NewManager returns a disconnected manager.  setup runs on a fresh channel
// after every successful dial; pass Declare to keep the topology in place.
func NewManager(cfg config.QueueConfig, setup func(Declarer) error) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     utils.Component("amqp"),
		dial:    amqp.Dial,
		ready:   make(chan struct{}),
		setup:   setup,
		stopped: make(chan struct{}),
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials until it succeeds or ctx ends, then keeps the connection
// alive in the background until ctx ends or Close is called.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.connectLoop(ctx); err != nil {
		return err
	}
	go m.watch(ctx)
	return nil
}

func (m *Manager) connectLoop(ctx context.Context) error {
	backoff := m.cfg.ReconnectMin
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		m.setState(StateConnecting)
		err := m.connectOnce()
		if err == nil {
			return nil
		}
		m.log.WithError(err).WithField("retry_in", backoff.String()).Warn("broker connect failed")
		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return ctx.Err()
		case <-m.stopped:
			return ErrClosed
		case <-time.After(backoff):
		}
		if backoff < m.cfg.ReconnectMax {
			backoff *= 2
			if backoff > m.cfg.ReconnectMax {
				backoff = m.cfg.ReconnectMax
			}
		}
	}
}

func (m *Manager) connectOnce() error {
	conn, err := m.dial(m.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if m.setup != nil {
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("setup channel: %w", err)
		}
		if err := m.setup(ch); err != nil {
			_ = conn.Close()
			return fmt.Errorf("declare topology: %w", err)
		}
		_ = ch.Close()
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("publish channel: %w", err)
	}
	if err := pub.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.stopped:
		_ = conn.Close()
		return ErrClosed
	default:
	}
	m.conn, m.pubCh = conn, pub
	m.state = StateConnected
	close(m.ready)
	m.log.Info("broker connected")
	return nil
}

func (m *Manager) watch(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			_ = m.Close()
			return
		case <-m.stopped:
			return
		case amqpErr := <-closed:
			m.log.WithField("reason", fmt.Sprint(amqpErr)).Warn("broker connection lost; reconnecting")
			m.mu.Lock()
			m.conn, m.pubCh = nil, nil
			m.ready = make(chan struct{})
			m.mu.Unlock()
			if err := m.connectLoop(ctx); err != nil {
				return
			}
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state != StateClosed {
		m.state = s
	}
	m.mu.Unlock()
}

// waitReady blocks until the manager is connected.
func (m *Manager) waitReady(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	for {
		m.mu.Lock()
		state, ready, conn, pub := m.state, m.ready, m.conn, m.pubCh
		m.mu.Unlock()
		if state == StateClosed {
			return nil, nil, ErrClosed
		}
		if state == StateConnected && conn != nil {
			return conn, pub, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-m.stopped:
			return nil, nil, ErrClosed
		case <-ready:
		}
	}
}

// Publish sends msg and waits for the broker confirm, bounded by the
// configured publish timeout.
func (m *Manager) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()
	_, pub, err := m.waitReady(ctx)
	if err != nil {
		return err
	}
	dc, err := pub.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNacked
	}
	return nil
}

// Consume opens a dedicated channel with the given prefetch and starts a
// manual-ack consumer on queue.  The returned channel closes when ctx ends
// or the underlying channel dies; callers then call Consume again.
func (m *Manager) Consume(ctx context.Context, queue string, prefetch int) (<-chan amqp.Delivery, error) {
	conn, _, err := m.waitReady(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue consume: %w", err)
	}
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-ctx.Done():
			_ = ch.Close()
		case <-chClosed:
		}
	}()
	return deliveries, nil
}

// Inspect returns depth and consumer count of queue using a passive declare
// on a throwaway channel; a missing queue closes only that channel.
func (m *Manager) Inspect(ctx context.Context, queue string) (QueueStats, error) {
	conn, _, err := m.waitReady(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return QueueStats{}, err
	}
	defer func() { _ = ch.Close() }()
	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}, nil
}

// Stats inspects every declared queue.
func (m *Manager) Stats(ctx context.Context) ([]QueueStats, error) {
	out := make([]QueueStats, 0, len(AllQueues))
	for _, name := range AllQueues {
		s, err := m.Inspect(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Purge drops every ready message in queue and returns how many were removed.
func (m *Manager) Purge(ctx context.Context, queue string) (int, error) {
	conn, _, err := m.waitReady(ctx)
	if err != nil {
		return 0, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return 0, err
	}
	defer func() { _ = ch.Close() }()
	return ch.QueuePurge(queue, false)
}

// Close shuts the connection down and stops reconnecting.  It is safe to
// call more than once.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.stopped)
		m.mu.Lock()
		conn := m.conn
		m.conn, m.pubCh = nil, nil
		m.state = StateClosed
		m.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
		m.log.Info("broker connection closed")
	})
	return err
}
