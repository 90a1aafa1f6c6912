// Package graph answers dependency-network reads over the component store.
package graph

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

// DefaultCacheSize is used when the configured size is not positive.
const DefaultCacheSize = 1024

// NetworkStats counts the edges around a component.
type NetworkStats struct {
	Total    int `json:"total"`
	Incoming int `json:"incoming"`
	Outgoing int `json:"outgoing"`
}

// Network is a component together with its direct neighbours.
type Network struct {
	Component schemas.MetadataComponent   `json:"component"`
	Nodes     []schemas.MetadataComponent `json:"nodes"`
	Edges     []schemas.DependencyEdge    `json:"edges"`
	Stats     NetworkStats                `json:"stats"`
}

// Subgraph is a set of components and the edges between them.
type Subgraph struct {
	Nodes []schemas.MetadataComponent `json:"nodes"`
	Edges []schemas.DependencyEdge    `json:"edges"`
}

// Reader serves network reads. Networks of components whose job has finished
// never change, so those are cached.
type Reader struct {
	store schemas.Store
	cache *lru.Cache[int64, Network]
	log   *zap.Logger
}

// NewReader creates a reader with an LRU of cacheSize networks.
func NewReader(store schemas.Store, cacheSize int, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[int64, Network](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create network cache: %w", err)
	}
	return &Reader{store: store, cache: cache, log: logger.Named("graph")}, nil
}

// Network returns the component, every component it shares an edge with and
// all of its inbound and outbound edges.
func (r *Reader) Network(ctx context.Context, componentID int64) (Network, error) {
	if cached, ok := r.cache.Get(componentID); ok {
		return cached.clone(), nil
	}

	center, err := r.store.GetComponent(ctx, componentID)
	if err != nil {
		return Network{}, err
	}
	edges, err := r.store.EdgesByComponent(ctx, componentID)
	if err != nil {
		return Network{}, err
	}

	net := Network{Component: center, Edges: edges}
	seen := map[int64]bool{componentID: true}
	for _, e := range edges {
		other := e.ToID
		if e.ToID == componentID {
			net.Stats.Incoming++
			other = e.FromID
		} else {
			net.Stats.Outgoing++
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		node, err := r.store.GetComponent(ctx, other)
		if err != nil {
			return Network{}, fmt.Errorf("failed to load neighbour %d: %w", other, err)
		}
		node.Content = ""
		net.Nodes = append(net.Nodes, node)
	}
	net.Stats.Total = len(edges)

	if r.cacheable(ctx, center.JobID) {
		r.cache.Add(componentID, net.clone())
	}
	return net, nil
}

// Subgraph returns the given components and the edges whose endpoints are
// both among them.
func (r *Reader) Subgraph(ctx context.Context, ids []int64) (Subgraph, error) {
	members := make(map[int64]bool, len(ids))
	var sub Subgraph
	for _, id := range ids {
		if members[id] {
			continue
		}
		c, err := r.store.GetComponent(ctx, id)
		if err != nil {
			return Subgraph{}, err
		}
		c.Content = ""
		members[id] = true
		sub.Nodes = append(sub.Nodes, c)
	}

	seenEdge := make(map[int64]bool)
	for _, node := range sub.Nodes {
		edges, err := r.store.EdgesByComponent(ctx, node.ID)
		if err != nil {
			return Subgraph{}, err
		}
		for _, e := range edges {
			if seenEdge[e.ID] || !members[e.FromID] || !members[e.ToID] {
				continue
			}
			seenEdge[e.ID] = true
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub, nil
}

// Purge drops every cached network.
func (r *Reader) Purge() { r.cache.Purge() }

func (r *Reader) cacheable(ctx context.Context, jobID string) bool {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		r.log.Debug("Not caching network, job unavailable", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return job.Status.Terminal()
}

func (n Network) clone() Network {
	out := n
	out.Nodes = append([]schemas.MetadataComponent(nil), n.Nodes...)
	out.Edges = append([]schemas.DependencyEdge(nil), n.Edges...)
	return out
}
