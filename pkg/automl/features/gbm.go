package features

import (
	"math"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// GBM recodes categories by decreasing frequency so that tree splits on codes group
// frequent levels together. Levels beyond the top categories share one code.
type GBM struct {
	top      int
	features []string
	roles    map[string]model.Role
	codes    map[string]map[float64]float64
}

func NewGBM(topCategories int) *GBM {
	return &GBM{top: topCategories}
}

func (g *GBM) Fit(ds *model.Dataset) error {
	g.features = append([]string(nil), ds.Features...)
	g.roles = make(map[string]model.Role, len(ds.Features))
	g.codes = map[string]map[float64]float64{}

	for j, f := range ds.Features {
		g.roles[f] = ds.Role(f)
		if ds.Role(f) != model.RoleCategory {
			continue
		}

		order := frequencyOrder(ds.Column(j))
		mapping := make(map[float64]float64, len(order))

		for rank, code := range order {
			if g.top > 0 && rank >= g.top {
				mapping[code] = float64(g.top)

				continue
			}

			mapping[code] = float64(rank)
		}

		g.codes[f] = mapping
	}

	return nil
}

func (g *GBM) Transform(ds *model.Dataset) (*model.Dataset, error) {
	if g.features == nil {
		return nil, ErrNotFitted
	}

	sel, err := ds.Select(g.features)
	if err != nil {
		return nil, err
	}

	rows := sel.Len()
	// Select copies, so the codes are rewritten in place
	data := sel.Data

	for j, f := range g.features {
		mapping, ok := g.codes[f]
		if !ok {
			continue
		}

		unseen := float64(len(mapping))
		if g.top > 0 && unseen > float64(g.top) {
			unseen = float64(g.top)
		}

		for r := 0; r < rows; r++ {
			v := data.At(r, j)
			if math.IsNaN(v) {
				continue
			}

			code, ok := mapping[v]
			if !ok {
				code = unseen
			}

			data.Set(r, j, code)
		}
	}

	return sel.With(g.features, g.roles, data), nil
}

func (g *GBM) Sources() map[string]string {
	return identitySources(g.features)
}

func (g *GBM) Clone() model.FeaturePipeline { return NewGBM(g.top) }
