package agent

import (
	"fmt"
	"sort"
	"sync"

	"preflight/internal/config"
	"preflight/internal/types"
)

// Binding is a resolved auxiliary agent.
type Binding struct {
	Name   string
	Client types.AgentClient
	Config config.AgentConfig
}

// Factory builds a client for a configured agent.
type Factory func(name string, cfg config.AgentConfig) (types.AgentClient, error)

// Pool hands out clients for configured agents, building each once.
type Pool struct {
	mu       sync.Mutex
	agents   map[string]config.AgentConfig
	fallback string
	factory  Factory
	clients  map[string]types.AgentClient
}

// NewPool creates a pool over agents. fallback names the agent used when a
// handler does not pick one.
func NewPool(agents map[string]config.AgentConfig, fallback string) *Pool {
	return NewPoolWithFactory(agents, fallback, New)
}

// NewPoolWithFactory is NewPool with a custom client factory.
func NewPoolWithFactory(agents map[string]config.AgentConfig, fallback string, factory Factory) *Pool {
	return &Pool{
		agents:   agents,
		fallback: fallback,
		factory:  factory,
		clients:  make(map[string]types.AgentClient),
	}
}

// Resolve returns the agent called name, or the fallback agent when name is empty.
func (p *Pool) Resolve(name string) (Binding, error) {
	if name == "" {
		name = p.fallback
	}
	if name == "" {
		return Binding{}, fmt.Errorf("no auxiliary agent configured")
	}
	cfg, ok := p.agents[name]
	if !ok {
		return Binding{}, fmt.Errorf("unknown agent %q (have %v)", name, p.Names())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	client, ok := p.clients[name]
	if !ok {
		var err error
		client, err = p.factory(name, cfg)
		if err != nil {
			return Binding{}, err
		}
		p.clients[name] = client
	}
	return Binding{Name: name, Client: client, Config: cfg}, nil
}

// Names returns the configured agent names, sorted.
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.agents))
	for n := range p.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
