package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// NodeGraph is an undirected adjacency view of a projection, used for
// connectivity analysis.
type NodeGraph struct {
	// Adjacency list: node -> nodes it shares an edge with
	edges map[string][]string
	nodes map[string]bool
}

// NewNodeGraph creates a new empty node graph.
func NewNodeGraph() *NodeGraph {
	return &NodeGraph{
		edges: make(map[string][]string),
		nodes: make(map[string]bool),
	}
}

// NewNodeGraphFromProjection builds the undirected graph of a projection.
// Edges whose endpoints are not part of the projection are ignored.
func NewNodeGraphFromProjection(p *models.GraphProjection) *NodeGraph {
	g := NewNodeGraph()
	for _, n := range p.Nodes {
		g.AddNode(n.ID)
	}
	for _, e := range p.Edges {
		if g.nodes[e.Source] && g.nodes[e.Target] {
			g.AddEdge(e.Source, e.Target)
		}
	}
	return g
}

// AddNode adds a node without any edges.
func (g *NodeGraph) AddNode(id string) {
	g.nodes[id] = true
}

// AddEdge adds an undirected edge, adding both nodes if needed.
func (g *NodeGraph) AddEdge(a, b string) {
	g.nodes[a] = true
	g.nodes[b] = true
	g.edges[a] = append(g.edges[a], b)
	g.edges[b] = append(g.edges[b], a)
}

// ConnectedComponent is a group of nodes reachable from one another.
type ConnectedComponent struct {
	Nodes []string
	Size  int
}

// FindConnectedComponents identifies all connected components using DFS.
// Returns components with more than one node, largest first, and the
// island nodes that have no edges at all.
func (g *NodeGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	visited := make(map[string]bool)

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var components []ConnectedComponent
	var islands []string
	for _, id := range ids {
		if visited[id] {
			continue
		}
		component := g.dfs(id, visited)
		if len(component) == 1 {
			islands = append(islands, component[0])
			continue
		}
		sort.Strings(component)
		components = append(components, ConnectedComponent{
			Nodes: component,
			Size:  len(component),
		})
	}

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Size > components[j].Size
	})

	return components, islands
}

// dfs returns every node in the component containing start.
func (g *NodeGraph) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true
		component = append(component, current)

		for _, neighbor := range g.edges[current] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}

	return component
}

// Density is the ratio of edges to the number of possible directed edges.
func Density(nodes, edges int) float64 {
	if nodes < 2 {
		return 0
	}
	return float64(edges) / float64(nodes*(nodes-1))
}

// LogConnectivity logs a connectivity summary at debug level.
func LogConnectivity(stats *models.GraphStats, components []ConnectedComponent, logger *zap.Logger) {
	for i, comp := range components {
		preview := comp.Nodes
		suffix := ""
		if len(preview) > 5 {
			preview = preview[:5]
			suffix = fmt.Sprintf(", ... (%d more)", len(comp.Nodes)-5)
		}
		logger.Debug(fmt.Sprintf("Component %d (%d nodes): %v%s", i+1, comp.Size, preview, suffix))
	}
	logger.Debug("Graph connectivity",
		zap.Int("nodes", stats.TotalNodes),
		zap.Int("edges", stats.TotalEdges),
		zap.Int("components", stats.ComponentCount),
		zap.Int("islands", stats.IslandCount))
}
