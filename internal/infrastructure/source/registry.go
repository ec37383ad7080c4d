package source

import (
	"fmt"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// Registry maps a source type to its connector. Connectors are stateless
// with respect to a particular source; credentials arrive per call.
type Registry struct {
	connectors map[domain.SourceType]ports.SourceConnector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[domain.SourceType]ports.SourceConnector)}
}

func (r *Registry) Register(sourceType domain.SourceType, connector ports.SourceConnector) {
	r.connectors[sourceType] = connector
}

func (r *Registry) Resolve(sourceType domain.SourceType) (ports.SourceConnector, error) {
	connector, ok := r.connectors[sourceType]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve connector",
			fmt.Errorf("unknown source type %q", sourceType))
	}
	return connector, nil
}
