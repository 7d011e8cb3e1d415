package boost

import (
	"golang.org/x/sync/errgroup"
)

// tree predicts one raw score from a binned row.
type tree interface {
	predict(row []uint16) float64
}

type node struct {
	feature int
	bin     uint16
	left    int
	right   int
	leaf    bool
	value   float64
}

// depthwiseTree is a binary tree grown node by node.
type depthwiseTree struct {
	nodes []node
}

func (t *depthwiseTree) predict(row []uint16) float64 {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if row[n.feature] <= n.bin {
			i = n.left
		} else {
			i = n.right
		}
	}

	return t.nodes[i].value
}

// obliviousTree uses the same split for every node of a depth.
type obliviousTree struct {
	features []int
	bins     []uint16
	leaves   []float64
}

func (t *obliviousTree) predict(row []uint16) float64 {
	idx := 0
	for d, f := range t.features {
		idx <<= 1
		if row[f] > t.bins[d] {
			idx |= 1
		}
	}

	return t.leaves[idx]
}

type split struct {
	feature int
	bin     uint16
	gain    float64
}

// grower builds one tree from gradients. gains accumulates split gain per feature.
type grower struct {
	binned   [][]uint16
	nbins    []int
	grad     []float64
	hess     []float64
	features []int
	lambda   float64
	minData  int
	maxDepth int
	rate     float64
	threads  int
	gains    []float64
}

func (g *grower) sums(rows []int) (float64, float64) {
	var sg, sh float64
	for _, r := range rows {
		sg += g.grad[r]
		sh += g.hess[r]
	}

	return sg, sh
}

func (g *grower) leafValue(sg, sh float64) float64 {
	return -sg / (sh + g.lambda) * g.rate
}

func (g *grower) score(sg, sh float64) float64 {
	return sg * sg / (sh + g.lambda)
}

// histogram accumulates gradient statistics of feature j over rows.
func (g *grower) histogram(j int, rows []int) (grad, hess []float64, count []int) {
	n := g.nbins[j]
	grad = make([]float64, n)
	hess = make([]float64, n)
	count = make([]int, n)

	for _, r := range rows {
		b := g.binned[r][j]
		grad[b] += g.grad[r]
		hess[b] += g.hess[r]
		count[b]++
	}

	return grad, hess, count
}

// forEachFeature runs fn for every candidate feature on at most threads goroutines.
func (g *grower) forEachFeature(fn func(slot, j int)) {
	var grp errgroup.Group

	grp.SetLimit(max(g.threads, 1))

	for slot, j := range g.features {
		grp.Go(func() error {
			fn(slot, j)

			return nil
		})
	}

	_ = grp.Wait()
}

func (g *grower) bestSplit(rows []int) split {
	sg, sh := g.sums(rows)
	parent := g.score(sg, sh)
	best := make([]split, len(g.features))

	g.forEachFeature(func(slot, j int) {
		grad, hess, count := g.histogram(j, rows)
		res := split{feature: j, gain: 0}

		var lg, lh float64

		lc := 0

		for b := 0; b < len(grad)-1; b++ {
			lg += grad[b]
			lh += hess[b]
			lc += count[b]

			rc := len(rows) - lc
			if lc < g.minData || rc < g.minData {
				continue
			}

			gain := g.score(lg, lh) + g.score(sg-lg, sh-lh) - parent
			if gain > res.gain {
				res.gain = gain
				res.bin = uint16(b)
			}
		}

		best[slot] = res
	})

	res := split{gain: 0}
	for _, s := range best {
		if s.gain > res.gain {
			res = s
		}
	}

	return res
}

func (g *grower) growDepthwise(rows []int) *depthwiseTree {
	t := &depthwiseTree{}
	g.buildNode(t, rows, 0)

	return t
}

func (g *grower) buildNode(t *depthwiseTree, rows []int, depth int) int {
	sg, sh := g.sums(rows)
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{leaf: true, value: g.leafValue(sg, sh)})

	if depth >= g.maxDepth || len(rows) < 2*g.minData {
		return idx
	}

	s := g.bestSplit(rows)
	if s.gain <= 0 {
		return idx
	}

	left, right := partition(g.binned, rows, s)
	g.gains[s.feature] += s.gain

	l := g.buildNode(t, left, depth+1)
	r := g.buildNode(t, right, depth+1)
	t.nodes[idx] = node{feature: s.feature, bin: s.bin, left: l, right: r}

	return idx
}

func (g *grower) growOblivious(rows []int) *obliviousTree {
	t := &obliviousTree{}
	groups := [][]int{rows}

	for depth := 0; depth < g.maxDepth; depth++ {
		s := g.bestLevelSplit(groups)
		if s.gain <= 0 {
			break
		}

		g.gains[s.feature] += s.gain
		t.features = append(t.features, s.feature)
		t.bins = append(t.bins, s.bin)

		next := make([][]int, 0, 2*len(groups))
		for _, grp := range groups {
			left, right := partition(g.binned, grp, s)
			next = append(next, left, right)
		}

		groups = next
	}

	t.leaves = make([]float64, len(groups))
	for i, grp := range groups {
		t.leaves[i] = g.leafValue(g.sums(grp))
	}

	return t
}

// bestLevelSplit picks the split that maximises the total gain over every group of a level.
func (g *grower) bestLevelSplit(groups [][]int) split {
	best := make([]split, len(g.features))

	g.forEachFeature(func(slot, j int) {
		total := make([]float64, g.nbins[j]-1)
		valid := make([]bool, len(total))

		for _, rows := range groups {
			if len(rows) == 0 {
				continue
			}

			sg, sh := g.sums(rows)
			parent := g.score(sg, sh)
			grad, hess, count := g.histogram(j, rows)

			var lg, lh float64

			lc := 0

			for b := range total {
				lg += grad[b]
				lh += hess[b]
				lc += count[b]

				if lc < g.minData || len(rows)-lc < g.minData {
					continue
				}

				valid[b] = true
				total[b] += g.score(lg, lh) + g.score(sg-lg, sh-lh) - parent
			}
		}

		res := split{feature: j}
		for b, gain := range total {
			if valid[b] && gain > res.gain {
				res.gain = gain
				res.bin = uint16(b)
			}
		}

		best[slot] = res
	})

	res := split{}
	for _, s := range best {
		if s.gain > res.gain {
			res = s
		}
	}

	return res
}

func partition(binned [][]uint16, rows []int, s split) (left, right []int) {
	for _, r := range rows {
		if binned[r][s.feature] <= s.bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return left, right
}
