package olap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/kcv/scan"
)

// ErrNoGraph is returned by GraphProvider.Get before a handle has been
// established.
var ErrNoGraph = errors.New("olap: no graph established")

// GraphProvider owns or borrows the graph handle backing one converter
// instance. A provided handle is borrowed: the caller opened it and the
// provider never closes it. A handle opened by Initialize is owned and is
// closed by exactly this provider.
type GraphProvider struct {
	graph    *golap.Graph
	provided bool
}

// NewGraphProvider creates an empty provider.
func NewGraphProvider() *GraphProvider {
	return &GraphProvider{}
}

// SetGraph installs a caller-supplied handle. The handle must be open.
func (p *GraphProvider) SetGraph(g *golap.Graph) error {
	if g == nil || !g.IsOpen() {
		return errors.New("olap: need an open graph")
	}

	p.graph = g
	p.provided = true

	return nil
}

// Initialize establishes the handle: a no-op when one was provided or
// already opened, otherwise it opens an owned handle from config.
func (p *GraphProvider) Initialize(config scan.Config) error {
	if p.graph != nil {
		return nil
	}

	cfg, err := golap.ConfigFromMap(config)
	if err != nil {
		return err
	}

	g, err := golap.Open(cfg)
	if err != nil {
		return fmt.Errorf("olap: open graph: %w", err)
	}
	p.graph = g

	return nil
}

// IsProvided reports whether the handle is borrowed.
func (p *GraphProvider) IsProvided() bool {
	return p.provided
}

// Get returns the established handle, or ErrNoGraph.
func (p *GraphProvider) Get() (*golap.Graph, error) {
	if p.graph == nil {
		return nil, ErrNoGraph
	}
	return p.graph, nil
}

// Close releases an owned handle if it is still open. Borrowed handles
// are left untouched. Close is idempotent.
func (p *GraphProvider) Close() error {
	if p.provided {
		return nil
	}
	if p.graph == nil {
		return nil
	}

	g := p.graph
	p.graph = nil

	if g.IsOpen() {
		return g.Close()
	}
	return nil
}
