package runtime

import (
	"context"
	"fmt"

	"github.com/harunnryd/kiki/internal/backend"
	"github.com/harunnryd/kiki/internal/config"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithWorkspace(workspacePath string) RuntimeBuilder
	WithBackend(chatter backend.Chatter) RuntimeBuilder
	Build() (*RuntimeComponents, error)
}

type DefaultRuntimeBuilder struct {
	ctx           context.Context
	cfg           *config.Config
	workspacePath string
	backend       backend.Chatter
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

func (b *DefaultRuntimeBuilder) WithWorkspace(workspacePath string) RuntimeBuilder {
	b.workspacePath = workspacePath
	return b
}

// WithBackend replaces the HTTP chat client built from the backend config section.
func (b *DefaultRuntimeBuilder) WithBackend(chatter backend.Chatter) RuntimeBuilder {
	b.backend = chatter
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*RuntimeComponents, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if b.workspacePath != "" {
		b.cfg.Store.WorkspacePath = b.workspacePath
	}

	components, err := NewRuntimeComponents(b.ctx, b.cfg, b.backend)
	if err != nil {
		return nil, err
	}

	return components, nil
}
