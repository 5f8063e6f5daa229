package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

type executorNode struct {
	address    string
	retryAfter time.Time
}

// executorPool hands out executor addresses round-robin, skipping nodes
// that failed within the cooldown window.
type executorPool struct {
	nodes    []*executorNode
	mu       sync.Mutex
	next     int
	cooldown time.Duration
}

func newExecutorPool(addresses []string, cooldown time.Duration) (*executorPool, error) {
	unique := make(map[string]struct{}, len(addresses))
	nodes := make([]*executorNode, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := unique[addr]; exists {
			continue
		}
		unique[addr] = struct{}{}
		nodes = append(nodes, &executorNode{address: addr})
	}
	if len(nodes) == 0 {
		return nil, errors.New("no valid python executor addresses provided")
	}
	return &executorPool{nodes: nodes, cooldown: cooldown}, nil
}

func (p *executorPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for checked := 0; checked < len(p.nodes); checked++ {
		node := p.nodes[p.next]
		p.next = (p.next + 1) % len(p.nodes)
		if now.After(node.retryAfter) {
			return node.address, nil
		}
	}
	return "", errors.New("no healthy python executors available")
}

func (p *executorPool) mark(address string, retryAfter time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, node := range p.nodes {
		if node.address == address {
			node.retryAfter = retryAfter
			return
		}
	}
}

func (p *executorPool) MarkFailure(address string) { p.mark(address, time.Now().Add(p.cooldown)) }
func (p *executorPool) MarkSuccess(address string) { p.mark(address, time.Time{}) }

func (p *executorPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes)
}

func (p *executorPool) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	addrs := make([]string, 0, len(p.nodes))
	for _, node := range p.nodes {
		addrs = append(addrs, node.address)
	}
	return addrs
}

// connPool keeps up to maxSize connections to one executor.
type connPool struct {
	address string
	idle    chan net.Conn
	sem     chan struct{}
	dial    func(context.Context) (net.Conn, error)
}

func newConnPool(address string, maxSize int, dial func(context.Context) (net.Conn, error)) *connPool {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &connPool{
		address: address,
		idle:    make(chan net.Conn, maxSize),
		sem:     make(chan struct{}, maxSize),
		dial:    dial,
	}
}

func (p *connPool) Get(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}

	select {
	case p.sem <- struct{}{}:
		conn, err := p.dial(ctx)
		if err != nil {
			<-p.sem
			return nil, err
		}
		return conn, nil
	case conn := <-p.idle:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *connPool) Put(conn net.Conn) {
	select {
	case p.idle <- conn:
	default:
		p.Discard(conn)
	}
}

func (p *connPool) Discard(conn net.Conn) {
	_ = conn.Close()
	select {
	case <-p.sem:
	default:
	}
}

func (p *connPool) Close() {
	for {
		select {
		case conn := <-p.idle:
			p.Discard(conn)
		default:
			return
		}
	}
}
