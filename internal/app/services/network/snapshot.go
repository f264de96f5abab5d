// Package network derives a read-only similarity graph over the archive for
// visualization. It holds no durable state and is safe to recompute on every
// request.
package network

import (
	"context"
	"sort"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/archive"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/redundancy"
)

// Node is one contribution in the graph.
type Node struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Status    contribution.Status `json:"status"`
	Tags      []string            `json:"tags,omitempty"`
	Composite int                 `json:"composite,omitempty"`
}

// Edge connects two contributions whose content overlaps beyond the builder
// threshold.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// Graph is a point-in-time snapshot. It is never written back to the
// archive.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Builder computes snapshots from the archive and the redundancy detector.
type Builder struct {
	archive   *archive.Service
	detector  *redundancy.Detector
	threshold float64
}

// NewBuilder constructs a snapshot builder. threshold filters edges; values
// outside (0,1] fall back to 0.2.
func NewBuilder(archiveSvc *archive.Service, detector *redundancy.Detector, threshold float64) *Builder {
	if detector == nil {
		detector = redundancy.New()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.2
	}
	return &Builder{archive: archiveSvc, detector: detector, threshold: threshold}
}

// Snapshot builds the graph over the complete archive, every lifecycle state
// included. Node and edge order is deterministic.
func (b *Builder) Snapshot(ctx context.Context) (Graph, error) {
	all, err := b.archive.Query(ctx, archive.QueryFilter{})
	if err != nil {
		return Graph{}, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	nodes := make([]Node, 0, len(all))
	for _, c := range all {
		node := Node{ID: c.ID, Title: c.Title, Status: c.Status, Tags: c.Tags}
		if c.Metrics != nil {
			node.Composite = c.Metrics.Composite
		}
		nodes = append(nodes, node)
	}

	edges := make([]Edge, 0)
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			weight := b.detector.Pairwise(all[i].Content, all[j].Content)
			if weight >= b.threshold {
				edges = append(edges, Edge{From: all[i].ID, To: all[j].ID, Weight: weight})
			}
		}
	}

	return Graph{Nodes: nodes, Edges: edges}, nil
}
