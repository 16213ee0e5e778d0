package pktdcf

// routes.go computes shortest path routes between stations and encodes them
// as nix vectors, so that a packet carries its own route and each relay
// needs only its own neighbor list to pick the next hop.
//
// The links of an experiment are converted into the data structures of a
// graph package that has built-in path discovery algorithms.  Weighting each
// link by 1, a shortest path minimizes the number of hops.  The Dijkstra
// algorithm computes a tree of shortest paths from a node, so for the path
// from src to dst we either compute such a tree rooted in src, or take from
// the cache a tree already computed for src, or for dst, which by symmetry
// holds the reversed path.

import (
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/iti/pktdcf/packet"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// RouteTable answers route queries over a fixed set of links between stations
type RouteTable struct {
	connGraph *simple.WeightedUndirectedGraph

	// nbrs lists the neighbors of each station in increasing id order.  A
	// neighbor's position in this list is what a nix vector records
	nbrs map[int][]int

	// cachedSP holds shortest path trees by the id of their root
	cachedSP *lru.Cache[int, path.Shortest]
}

// CreateRouteTable is a constructor.  edges maps a station id to the ids of
// the stations it links to; links are undirected.  At most cacheSize shortest
// path trees are kept
func CreateRouteTable(edges map[int][]int, cacheSize int) (*RouteTable, error) {
	cache, err := lru.New[int, path.Shortest](max(cacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}
	rt := new(RouteTable)
	rt.cachedSP = cache
	rt.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rt.nbrs = make(map[int][]int)

	for nodeID, edgeList := range edges {
		if rt.connGraph.Node(int64(nodeID)) == nil {
			rt.connGraph.AddNode(simple.Node(nodeID))
		}
		for _, nbrID := range edgeList {
			if nbrID == nodeID {
				return nil, fmt.Errorf("station %d links to itself", nodeID)
			}
			rt.connGraph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(nodeID), T: simple.Node(nbrID), W: 1.0})
		}
	}

	nodes := rt.connGraph.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		nbrs := []int{}
		to := rt.connGraph.From(id)
		for to.Next() {
			nbrs = append(nbrs, int(to.Node().ID()))
		}
		slices.Sort(nbrs)
		rt.nbrs[int(id)] = nbrs
	}
	return rt, nil
}

// Neighbors returns the ids of the stations linked to id, in increasing order
func (rt *RouteTable) Neighbors(id int) []int {
	return rt.nbrs[id]
}

// getSPTree returns the shortest path tree rooted in from, computing and caching it if need be
func (rt *RouteTable) getSPTree(from int) path.Shortest {
	if spTree, present := rt.cachedSP.Get(from); present {
		return spTree
	}
	spTree := path.DijkstraFrom(simple.Node(from), rt.connGraph)
	rt.cachedSP.Add(from, spTree)
	return spTree
}

// convertNodeSeq extracts the station ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// Route returns the stations on a shortest path from src to dst, both
// included, or nil if dst cannot be reached
func (rt *RouteTable) Route(src, dst int) []int {
	if rt.connGraph.Node(int64(src)) == nil || rt.connGraph.Node(int64(dst)) == nil {
		return nil
	}
	if src == dst {
		return []int{src}
	}

	var route []int
	if spTree, present := rt.cachedSP.Get(src); present {
		nodeSeq, _ := spTree.To(int64(dst))
		route = convertNodeSeq(nodeSeq)
	} else if spTree, present := rt.cachedSP.Get(dst); present {
		revNodeSeq, _ := spTree.To(int64(src))
		route = convertNodeSeq(revNodeSeq)
		slices.Reverse(route)
	} else {
		nodeSeq, _ := rt.getSPTree(src).To(int64(dst))
		route = convertNodeSeq(nodeSeq)
	}
	if len(route) == 0 {
		return nil
	}
	return route
}

// NixRoute encodes the shortest path from src to dst as a nix vector.  The
// indices are added from the last hop back, so that the first extracted is the
// hop out of src.  The return is false if dst cannot be reached
func (rt *RouteTable) NixRoute(src, dst int) (*packet.NixVector, bool) {
	route := rt.Route(src, dst)
	if route == nil {
		return nil, false
	}
	nv := packet.NewNixVector()
	for idx := len(route) - 2; idx >= 0; idx-- {
		here, next := route[idx], route[idx+1]
		nbrs := rt.nbrs[here]
		pos := slices.Index(nbrs, next)
		if pos < 0 {
			panic(fmt.Errorf("route from %d to %d steps between unlinked stations %d and %d", src, dst, here, next))
		}
		nv.AddNeighborIndex(uint32(pos), packet.BitCount(uint32(len(nbrs))))
	}
	return nv, true
}

// NextHop extracts from nv the hop out of station here
func (rt *RouteTable) NextHop(here int, nv *packet.NixVector) int {
	nbrs := rt.nbrs[here]
	pos := nv.ExtractNeighborIndex(packet.BitCount(uint32(len(nbrs))))
	if int(pos) >= len(nbrs) {
		panic(fmt.Errorf("nix vector names neighbor %d of station %d, which has %d", pos, here, len(nbrs)))
	}
	return nbrs[pos]
}

// ShowPath returns a string that lists the names of the stations on a route
func ShowPath(route []int, idToName map[int]string) string {
	names := make([]string, 0, len(route))
	for _, id := range route {
		names = append(names, idToName[id])
	}
	return strings.Join(names, ",")
}
