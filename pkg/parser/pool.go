// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrPoolClosed is returned when the pool is closed.
	ErrPoolClosed = errors.New("parser pool is closed")
	// ErrPoolExhausted is returned when MaxActive is set and reached.
	ErrPoolExhausted = errors.New("parser pool exhausted")
)

// PoolConfig holds parser pool configuration.
type PoolConfig struct {
	// MaxActive caps parsers in use. If 0, there is no limit; the pool
	// then never fails Get on the frame path, trading memory for freedom
	// from blocking.
	MaxActive int
	// IdleTimeout is how long an idle parser is retained before eviction.
	IdleTimeout time.Duration
	// EvictionInterval is how often idle parsers are swept.
	EvictionInterval time.Duration
}

// Pool is a process-wide pool of reusable stanza parsers. Get never blocks:
// when no idle parser is available a new one is created, or ErrPoolExhausted
// is returned if MaxActive is configured and reached. Put validates the
// parser and discards it on failure. A background sweeper evicts parsers
// idle beyond IdleTimeout.
//
// The pool is constructed explicitly and handed to each connection; there
// is no package-level instance.
type Pool struct {
	mu     sync.Mutex
	idle   []*Parser
	active int
	config PoolConfig
	closed bool
	done   chan struct{}
}

// NewPool creates a parser pool and starts its eviction sweeper.
func NewPool(config PoolConfig) *Pool {
	if config.IdleTimeout == 0 {
		config.IdleTimeout = time.Minute
	}
	if config.EvictionInterval == 0 {
		config.EvictionInterval = time.Minute
	}

	p := &Pool{
		config: config,
		done:   make(chan struct{}),
	}
	go p.evictIdle()
	return p
}

// Get retrieves a parser from the pool or creates a new one. It never
// blocks.
func (p *Pool) Get() (*Parser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		parser := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.active++
		return parser, nil
	}

	if p.config.MaxActive > 0 && p.active >= p.config.MaxActive {
		return nil, ErrPoolExhausted
	}

	p.active++
	return NewParser(), nil
}

// Put returns a parser to the pool. Parsers that fail validation are
// discarded. Callers must return every parser they obtained, regardless of
// whether parsing succeeded.
func (p *Pool) Put(parser *Parser) {
	if parser == nil {
		return
	}

	healthy := parser.Healthy()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--
	if p.closed || !healthy {
		return
	}
	p.idle = append(p.idle, parser)
}

// evictIdle periodically drops parsers that have been idle longer than
// IdleTimeout.
func (p *Pool) evictIdle() {
	ticker := time.NewTicker(p.config.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}

		cutoff := time.Now().Add(-p.config.IdleTimeout)
		kept := p.idle[:0]
		for _, parser := range p.idle {
			if parser.lastUsed.After(cutoff) {
				kept = append(kept, parser)
			}
		}
		p.idle = kept
		p.mu.Unlock()
	}
}

// Close shuts the pool down. Subsequent Get calls fail with ErrPoolClosed;
// parsers still in use are discarded on return.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.idle = nil
	close(p.done)
}

// Stats returns the number of idle and active parsers.
func (p *Pool) Stats() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.active
}
