// Package boost implements histogram gradient-boosted decision trees.
//
// Two tree growers are available: depthwise trees (the lgb family) and oblivious
// trees that share one split per depth (the cb family). Training stops adding trees
// when the validation score stops improving or when the soft budget is spent.
package boost

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/model"
)

var ErrNotFitted = errors.New("booster is not fitted")

// Params configures a booster.
type Params struct {
	config.BoostParams
	// Threads bounds the split search workers.
	Threads int
	// Oblivious selects symmetric trees.
	Oblivious bool
	Clock     clock.PassiveClock
}

// Model is a gradient-boosted tree ensemble.
type Model struct {
	name   string
	task   *model.Task
	params Params
	budget time.Duration

	features   []string
	outputs    int
	binner     *binner
	base       []float64
	trees      [][]tree
	importance map[string]float64
}

// New creates an unfitted booster.
func New(name string, task *model.Task, params Params) *Model {
	if params.Clock == nil {
		params.Clock = clock.RealClock{}
	}

	return &Model{name: name, task: task, params: params}
}

func (m *Model) Name() string { return m.name }

// Threads returns the split search worker bound.
func (m *Model) Threads() int { return m.params.Threads }

// SetBudget bounds the wall time of the next Fit. Zero means unbounded.
func (m *Model) SetBudget(d time.Duration) { m.budget = d }

// Params describes the hyperparameters.
func (m *Model) Params() map[string]any {
	p := m.params

	return map[string]any{
		"num_trees":        p.NumTrees,
		"learning_rate":    p.LearningRate,
		"max_depth":        p.MaxDepth,
		"min_data_in_leaf": p.MinDataInLeaf,
		"feature_fraction": p.FeatureFraction,
		"bagging_fraction": p.BaggingFraction,
		"lambda":           p.Lambda,
		"oblivious":        p.Oblivious,
	}
}

// Trees returns the number of boosting rounds kept after fitting.
func (m *Model) Trees() int { return len(m.trees) }

func (m *Model) Clone() model.Model {
	return &Model{name: m.name, task: m.task, params: m.params, budget: m.budget}
}

// Sample draws hyperparameters around the defaults.
func (m *Model) Sample(rng *rand.Rand) model.Model {
	p := m.params
	p.LearningRate = math.Exp(math.Log(0.01) + rng.Float64()*(math.Log(0.2)-math.Log(0.01)))
	p.MaxDepth = 3 + rng.Intn(6)
	p.MinDataInLeaf = 5 + rng.Intn(60)
	p.FeatureFraction = 0.5 + rng.Float64()*0.5
	p.BaggingFraction = 0.5 + rng.Float64()*0.5
	p.Lambda = math.Exp(math.Log(1e-3) + rng.Float64()*(math.Log(10)-math.Log(1e-3)))
	p.Seed = rng.Int63()

	return &Model{name: m.name, task: m.task, params: p, budget: m.budget}
}

// Importance returns the total split gain per feature.
func (m *Model) Importance() map[string]float64 {
	res := make(map[string]float64, len(m.importance))
	for k, v := range m.importance {
		res[k] = v
	}

	return res
}

func (m *Model) Fit(ctx context.Context, train, valid *model.Dataset) error {
	if train.Len() == 0 {
		return errors.Wrap(model.ErrNoFeatures, "unable to fit on empty data")
	}

	start := m.params.Clock.Now()
	p := m.params
	rng := rand.New(rand.NewSource(p.Seed))

	m.features = train.Features
	m.outputs = train.Outputs(m.task)
	m.binner = newBinner(train.Data, p.MaxBins)
	m.trees = nil

	obj := objective{task: m.task, outputs: m.outputs}
	m.base = obj.initScore(train.Target)

	pos := identity(len(m.features))
	binned := m.binner.transform(train.Data, pos)
	nbins := make([]int, len(m.features))

	for j := range nbins {
		nbins[j] = m.binner.bins(j)
	}

	rows := train.Len()
	raw := make([][]float64, rows)

	for i := range raw {
		raw[i] = append([]float64(nil), m.base...)
	}

	var (
		validBinned [][]uint16
		validRaw    [][]float64
		bestScore   = math.Inf(-1)
		bestIter    = 0
	)

	if valid != nil && valid.Len() > 0 && p.EarlyStoppingRounds > 0 {
		vpos, err := m.positions(valid)
		if err != nil {
			return err
		}

		validBinned = m.binner.transform(valid.Data, vpos)

		validRaw = make([][]float64, valid.Len())
		for i := range validRaw {
			validRaw[i] = append([]float64(nil), m.base...)
		}
	}

	gains := make([]float64, len(m.features))
	grad := make([]float64, rows)
	hess := make([]float64, rows)

	for iter := 0; iter < max(p.NumTrees, 1); iter++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "unable to finish boosting")
		}

		sample := bag(rng, rows, p.BaggingFraction)
		round := make([]tree, m.outputs)

		for k := 0; k < m.outputs; k++ {
			obj.gradients(train.Target, raw, k, grad, hess)

			g := &grower{
				binned:   binned,
				nbins:    nbins,
				grad:     grad,
				hess:     hess,
				features: subsample(rng, len(m.features), p.FeatureFraction),
				lambda:   p.Lambda,
				minData:  max(p.MinDataInLeaf, 1),
				maxDepth: max(p.MaxDepth, 1),
				rate:     p.LearningRate,
				threads:  p.Threads,
				gains:    gains,
			}

			if p.Oblivious {
				round[k] = g.growOblivious(sample)
			} else {
				round[k] = g.growDepthwise(sample)
			}
		}

		// gradients of later outputs must see the scores of the whole round
		for i := range raw {
			for k, t := range round {
				raw[i][k] += t.predict(binned[i])
			}
		}

		m.trees = append(m.trees, round)

		if validBinned != nil {
			for i := range validRaw {
				for k, t := range round {
					validRaw[i][k] += t.predict(validBinned[i])
				}
			}

			score := m.task.Score(valid.Target, m.linkAll(validRaw))
			if score > bestScore {
				bestScore = score
				bestIter = iter
			} else if iter-bestIter >= p.EarlyStoppingRounds {
				break
			}
		}

		if m.budget > 0 && m.params.Clock.Since(start) >= m.budget {
			break
		}
	}

	if validBinned != nil && bestIter+1 < len(m.trees) {
		m.trees = m.trees[:bestIter+1]
	}

	m.importance = make(map[string]float64, len(m.features))
	for j, f := range m.features {
		m.importance[f] = gains[j]
	}

	return nil
}

func (m *Model) Predict(ds *model.Dataset) (*mat.Dense, error) {
	if m.binner == nil {
		return nil, ErrNotFitted
	}

	if ds.Len() == 0 {
		return &mat.Dense{}, nil
	}

	pos, err := m.positions(ds)
	if err != nil {
		return nil, err
	}

	binned := m.binner.transform(ds.Data, pos)
	raw := make([][]float64, len(binned))

	for i, row := range binned {
		raw[i] = append([]float64(nil), m.base...)
		for _, round := range m.trees {
			for k, t := range round {
				raw[i][k] += t.predict(row)
			}
		}
	}

	return m.linkAll(raw), nil
}

func (m *Model) linkAll(raw [][]float64) *mat.Dense {
	if len(raw) == 0 {
		return &mat.Dense{}
	}

	obj := objective{task: m.task, outputs: m.outputs}
	res := mat.NewDense(len(raw), m.outputs, nil)

	for i, r := range raw {
		obj.link(r, res.RawRowView(i))
	}

	return res
}

// positions maps every training feature to its column in ds.
func (m *Model) positions(ds *model.Dataset) ([]int, error) {
	pos := make([]int, len(m.features))

	for j, f := range m.features {
		p, err := ds.Index(f)
		if err != nil {
			return nil, errors.Wrap(err, "unable to align features")
		}

		pos[j] = p
	}

	return pos, nil
}

func identity(n int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = i
	}

	return res
}

func bag(rng *rand.Rand, rows int, fraction float64) []int {
	if fraction <= 0 || fraction >= 1 {
		return identity(rows)
	}

	res := make([]int, 0, int(float64(rows)*fraction)+1)
	for i := 0; i < rows; i++ {
		if rng.Float64() < fraction {
			res = append(res, i)
		}
	}

	if len(res) == 0 {
		return identity(rows)
	}

	return res
}

func subsample(rng *rand.Rand, n int, fraction float64) []int {
	if fraction <= 0 || fraction >= 1 {
		return identity(n)
	}

	k := max(int(math.Round(float64(n)*fraction)), 1)
	perm := rng.Perm(n)[:k]

	return perm
}

var (
	_ model.Tunable     = (*Model)(nil)
	_ model.Budgeted    = (*Model)(nil)
	_ model.Importancer = (*Model)(nil)
)
