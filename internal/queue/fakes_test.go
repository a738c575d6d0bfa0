package queue

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// recordingSender captures publishes instead of talking to a broker.
type recordingSender struct {
	mu   sync.Mutex
	out  []published
	fail error
}

func (s *recordingSender) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.out = append(s.out, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (s *recordingSender) sent() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]published(nil), s.out...)
}

// ackRecorder is an amqp.Acknowledger that remembers how a delivery was settled.
type ackRecorder struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

type declared struct {
	exchanges map[string]string
	exArgs    map[string]amqp.Table
	queues    map[string]amqp.Table
	bindings  map[string][]string     // queue -> "exchange|key"
	bindArgs  map[string][]amqp.Table // queue -> binding arguments, nil entries dropped
}

// declareRecorder implements Declarer.
type declareRecorder struct{ d declared }

func newDeclareRecorder() *declareRecorder {
	return &declareRecorder{d: declared{
		exchanges: map[string]string{},
		exArgs:    map[string]amqp.Table{},
		queues:    map[string]amqp.Table{},
		bindings:  map[string][]string{},
		bindArgs:  map[string][]amqp.Table{},
	}}
}

func (r *declareRecorder) ExchangeDeclare(name, kind string, _, _, _, _ bool, args amqp.Table) error {
	r.d.exchanges[name] = kind
	r.d.exArgs[name] = args
	return nil
}

func (r *declareRecorder) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	r.d.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (r *declareRecorder) QueueBind(name, key, exchange string, _ bool, args amqp.Table) error {
	r.d.bindings[name] = append(r.d.bindings[name], exchange+"|"+key)
	if args != nil {
		r.d.bindArgs[name] = append(r.d.bindArgs[name], args)
	}
	return nil
}
