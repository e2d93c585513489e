// Package report groups related media records for display.
package report

import (
	"sort"

	"mediadedup/internal/models"
)

// Link is one stored edge inside a cluster.
type Link struct {
	MediaID    string
	OriginalID string
	Kind       models.EdgeKind
	Score      float64
}

// Cluster is a connected set of records joined by duplicate or variant edges.
type Cluster struct {
	ID      int
	Keep    *models.MediaRecord
	Members []*models.MediaRecord
	Links   []Link
}

// Duplicates returns the members that are ignored as duplicates.
func (c *Cluster) Duplicates() []*models.MediaRecord {
	var out []*models.MediaRecord
	for _, m := range c.Members {
		if m.Duplicates.Len() > 0 {
			out = append(out, m)
		}
	}
	return out
}

// Clusters groups records connected by edges. Edges pointing at records
// outside the input are dropped. Records without edges are left out.
func Clusters(records []*models.MediaRecord) []*Cluster {
	index := make(map[string]int, len(records))
	for i, m := range records {
		index[m.ID] = i
	}

	uf := newUnionFind(len(records))
	var links []Link
	for i, m := range records {
		for _, kind := range models.EdgeKinds {
			for _, e := range m.Edges(kind).Edges() {
				j, ok := index[e.OriginalID]
				if !ok {
					continue
				}
				uf.union(i, j)
				links = append(links, Link{MediaID: m.ID, OriginalID: e.OriginalID, Kind: kind, Score: e.SimilarityScore})
			}
		}
	}

	groupMap := make(map[int][]*models.MediaRecord)
	for i, m := range records {
		root := uf.find(i)
		groupMap[root] = append(groupMap[root], m)
	}
	linkMap := make(map[int][]Link)
	for _, l := range links {
		root := uf.find(index[l.MediaID])
		linkMap[root] = append(linkMap[root], l)
	}

	var clusters []*Cluster
	for root, members := range groupMap {
		if len(members) < 2 {
			continue
		}
		c := &Cluster{Members: members, Links: linkMap[root]}
		selectKeep(c)
		clusters = append(clusters, c)
	}

	// Largest clusters first, then by keeper id for stable output
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].Members) != len(clusters[j].Members) {
			return len(clusters[i].Members) > len(clusters[j].Members)
		}
		return clusters[i].Keep.ID < clusters[j].Keep.ID
	})
	for i, c := range clusters {
		c.ID = i + 1
	}
	return clusters
}

// selectKeep orders the members so the record to publish comes first.
func selectKeep(c *Cluster) {
	sort.Slice(c.Members, func(i, j int) bool {
		a, b := c.Members[i], c.Members[j]

		// Primary: not ignored
		if a.Ignored != b.Ignored {
			return !a.Ignored
		}

		// Secondary: already published
		if a.HasPublication() != b.HasPublication() {
			return a.HasPublication()
		}

		// Tertiary: asset size (larger is better - more information)
		if a.Primary().Size != b.Primary().Size {
			return a.Primary().Size > b.Primary().Size
		}

		// Then: first seen
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		// Fallback: id (alphabetical)
		return a.ID < b.ID
	})
	c.Keep = c.Members[0]

	sort.Slice(c.Links, func(i, j int) bool {
		if c.Links[i].Kind != c.Links[j].Kind {
			return c.Links[i].Kind < c.Links[j].Kind
		}
		if c.Links[i].MediaID != c.Links[j].MediaID {
			return c.Links[i].MediaID < c.Links[j].MediaID
		}
		return c.Links[i].OriginalID < c.Links[j].OriginalID
	})
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
