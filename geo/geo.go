// Package geo provides the road network and the duration/distance
// collaborator the rest of the simulator treats as an external dependency
// (SPEC_FULL.md's geo component; spec.md §1 scopes shortest-path loading out
// of the core algorithms but requires a concrete duration(u,v)/distance(u,v)
// provider — this is it).
package geo

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Location identifies a point on the road network as an edge position:
// the directed edge (Source, Target) and a fractional offset along it.
// Mirrors spec.md §3's Location record.
type Location struct {
	Source int64
	Target int64
	Offset float64 // 0 = at Source, 1 = at Target
}

func (l Location) IsIntersection() bool {
	return l.Offset == 0
}

// Graph is the directed, weighted road network plus a precomputed
// node-to-node duration table. Lookups fall back to Dijkstra over the graph
// when the table has no entry, so a partial precomputed table is still
// usable.
type Graph struct {
	g        *simple.DirectedGraph
	edgeSec  map[[2]int64]float64 // per-edge traversal time, seconds
	edgeDist map[[2]int64]float64 // per-edge length, metres
	dur      map[[2]int64]float64 // node -> node shortest duration, seconds
	dist     map[[2]int64]float64 // node -> node shortest distance, metres
	firstNode int64
}

// DepotNode returns an arbitrary but stable node id (the first node parsed
// from the map file), used as the default vehicle depot location.
func (g *Graph) DepotNode() int64 { return g.firstNode }

// AtNode builds a Location sitting exactly at node id, with no fractional
// edge offset.
func AtNode(id int64) Location { return Location{Source: id, Target: id, Offset: 0} }

// Nodes returns every node id in the graph, in no particular order. Used by
// table-precomputation tooling that needs to enumerate all-pairs routes.
func (g *Graph) Nodes() []int64 {
	it := g.g.Nodes()
	ids := make([]int64, 0, it.Len())
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	return ids
}

// LoadGraph parses a CSV edge list (source,target,seconds,metres) into a
// directed graph.
func LoadGraph(r *os.File) (*Graph, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode map file: %w", err)
	}

	g := &Graph{
		g:        simple.NewDirectedGraph(),
		edgeSec:  map[[2]int64]float64{},
		edgeDist: map[[2]int64]float64{},
		dur:      map[[2]int64]float64{},
		dist:     map[[2]int64]float64{},
	}

	start := 0
	if len(rows) > 0 && !isNumeric(rows[0][0]) {
		start = 1 // header row
	}
	for _, row := range rows[start:] {
		if len(row) < 4 {
			continue
		}
		src, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode map file: bad source id %q: %w", row[0], err)
		}
		dst, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode map file: bad target id %q: %w", row[1], err)
		}
		sec, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("decode map file: bad duration %q: %w", row[2], err)
		}
		m, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("decode map file: bad distance %q: %w", row[3], err)
		}
		ensureNode(g.g, src)
		ensureNode(g.g, dst)
		if g.firstNode == 0 {
			g.firstNode = src
		}
		g.g.SetEdge(simple.Edge{F: simple.Node(src), T: simple.Node(dst)})
		key := [2]int64{src, dst}
		g.edgeSec[key] = sec
		g.edgeDist[key] = m
	}
	return g, nil
}

func ensureNode(g *simple.DirectedGraph, id int64) {
	if g.Node(id) == nil {
		g.AddNode(simple.Node(id))
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// LoadDurationTable parses a precomputed source,target,seconds CSV into the
// fast-path lookup table (spec.md §6's shortest_path_time_file).
func (g *Graph) LoadDurationTable(r *os.File) error {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("decode shortest path time file: %w", err)
	}
	start := 0
	if len(rows) > 0 && !isNumeric(rows[0][0]) {
		start = 1
	}
	for _, row := range rows[start:] {
		if len(row) < 3 {
			continue
		}
		src, _ := strconv.ParseInt(row[0], 10, 64)
		dst, _ := strconv.ParseInt(row[1], 10, 64)
		sec, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return fmt.Errorf("decode shortest path time file: bad duration %q: %w", row[2], err)
		}
		g.dur[[2]int64{src, dst}] = sec
	}
	return nil
}

// LoadDistanceTable parses a precomputed source,target,metres CSV.
func (g *Graph) LoadDistanceTable(r *os.File) error {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("decode shortest path distance file: %w", err)
	}
	start := 0
	if len(rows) > 0 && !isNumeric(rows[0][0]) {
		start = 1
	}
	for _, row := range rows[start:] {
		if len(row) < 3 {
			continue
		}
		src, _ := strconv.ParseInt(row[0], 10, 64)
		dst, _ := strconv.ParseInt(row[1], 10, 64)
		m, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return fmt.Errorf("decode shortest path distance file: bad distance %q: %w", row[2], err)
		}
		g.dist[[2]int64{src, dst}] = m
	}
	return nil
}

// nodeDuration computes shortest-path duration between two intersection
// nodes, trying the precomputed table first and falling back to Dijkstra
// over the per-edge second weights.
func (g *Graph) nodeDuration(u, v int64) float64 {
	if u == v {
		return 0
	}
	if d, ok := g.dur[[2]int64{u, v}]; ok {
		return d
	}
	from := path.DijkstraFrom(simple.Node(u), weightedByKey(g.g, g.edgeSec))
	d, _ := from.To(v)
	g.dur[[2]int64{u, v}] = d
	return d
}

func (g *Graph) nodeDistance(u, v int64) float64 {
	if u == v {
		return 0
	}
	if d, ok := g.dist[[2]int64{u, v}]; ok {
		return d
	}
	from := path.DijkstraFrom(simple.Node(u), weightedByKey(g.g, g.edgeDist))
	d, _ := from.To(v)
	g.dist[[2]int64{u, v}] = d
	return d
}

// weightedByKey adapts an edge-keyed weight map into a graph.Weighted graph
// view for gonum's Dijkstra implementation.
type weightedGraph struct {
	*simple.DirectedGraph
	weights map[[2]int64]float64
}

func weightedByKey(g *simple.DirectedGraph, weights map[[2]int64]float64) graph.Weighted {
	return weightedGraph{DirectedGraph: g, weights: weights}
}

func (w weightedGraph) Weight(xid, yid int64) (float64, bool) {
	wt, ok := w.weights[[2]int64{xid, yid}]
	return wt, ok
}

// Duration returns the travel duration in seconds between two Locations,
// approximated as the remaining part of the origin edge, plus node-to-node
// shortest time from a.Target to b.Source, plus the covered part of the
// destination edge (spec.md's duration(u,v) collaborator).
func Duration(g *Graph, a, b Location) float64 {
	base := g.nodeDuration(a.Target, b.Source)
	aRem := g.edgeSec[[2]int64{a.Source, a.Target}] * (1 - a.Offset)
	bRem := g.edgeSec[[2]int64{b.Source, b.Target}] * b.Offset
	return aRem + base + bRem
}

// Distance mirrors Duration for path length in metres.
func Distance(g *Graph, a, b Location) float64 {
	base := g.nodeDistance(a.Target, b.Source)
	aRem := g.edgeDist[[2]int64{a.Source, a.Target}] * (1 - a.Offset)
	bRem := g.edgeDist[[2]int64{b.Source, b.Target}] * b.Offset
	return aRem + base + bRem
}
