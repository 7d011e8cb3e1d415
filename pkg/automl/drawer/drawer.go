// Package drawer renders an assembled AutoML as a DOT graph.
//
// Vertices are the reader, the pre-selectors, every trainable unit and the final
// blender. Units are coloured from blue to red by their planned share of the budget.
package drawer

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/go-automl/internal/store"
	"github.com/askiada/go-automl/pkg/automl/engine"
	"github.com/askiada/go-automl/pkg/automl/nested"
	"github.com/askiada/go-automl/pkg/automl/selection"
)

const (
	ReaderStep  = "reader"
	BlenderStep = "blender"

	maxRGB = 240
)

// Drawer holds the graph of one AutoML.
type Drawer struct {
	store store.CustomStore[string, string]
	graph graph.Graph[string, string]
}

// New creates an empty drawer.
func New() *Drawer {
	s := store.NewMemoryStore[string, string]()

	return &Drawer{
		store: s,
		graph: graph.NewWithStore(graph.StringHash, s, graph.Directed(), graph.PreventCycles()),
	}
}

// AddStep adds a vertex.
func (d *Drawer) AddStep(name string, attrs ...func(*graph.VertexProperties)) error {
	err := d.graph.AddVertex(name, attrs...)
	if err != nil {
		return errors.Wrapf(err, "unable to add vertex %s", name)
	}

	return nil
}

// AddLink adds an edge from parent to child.
func (d *Drawer) AddLink(parent, child string) error {
	err := d.graph.AddEdge(parent, child)
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parent, child)
	}

	return nil
}

// Order returns the steps in a topological order, ties broken by insertion order.
func (d *Drawer) Order() ([]string, error) {
	order, err := graph.StableTopologicalSort(d.graph, d.before)
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort steps")
	}

	return order, nil
}

func (d *Drawer) before(a, b string) bool {
	i, _ := d.store.Order(a)
	j, _ := d.store.Order(b)

	return i < j
}

// Attributes returns the DOT attributes of a step.
func (d *Drawer) Attributes(name string) (map[string]string, error) {
	_, props, err := d.graph.VertexWithProperties(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get vertex %s", name)
	}

	res := make(map[string]string, len(props.Attributes))
	for k, v := range props.Attributes {
		res[k] = v
	}

	return res, nil
}

// Parents returns the direct predecessors of a step in insertion order.
func (d *Drawer) Parents(name string) ([]string, error) {
	edges, err := d.store.ListEdges()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list edges")
	}

	var res []string

	for _, e := range edges {
		if e.Target == name {
			res = append(res, e.Source)
		}
	}

	return res, nil
}

// Write renders the graph in DOT format.
func (d *Drawer) Write(w io.Writer) error {
	if _, err := d.Order(); err != nil {
		return err
	}

	return dot(d, w)
}

// Draw writes the DOT graph to a file.
func (d *Drawer) Draw(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", path)
	}
	defer file.Close()

	err = d.Write(file)
	if err != nil {
		return errors.Wrapf(err, "unable to write dot file %s", path)
	}

	return nil
}

// FromAutoML draws the levels of an assembled AutoML. Once fitted, units that did not
// train are dashed and the consumed time is shown next to the planned one.
func FromAutoML(a *engine.AutoML) (*Drawer, error) {
	d := New()

	err := d.AddStep(ReaderStep, graph.VertexAttribute("shape", "box"))
	if err != nil {
		return nil, err
	}

	selectors := map[selection.Selector]string{}
	fitted := fittedUnits(a.FittedLevels())
	planned := map[string]time.Duration{}

	var previous []string

	for i, level := range a.Levels() {
		var current []string

		for _, pipe := range level {
			var parents []string
			if i == 0 || a.SkipConn() || len(previous) == 0 {
				parents = append(parents, ReaderStep)
			}

			if sel := pipe.Selector(); sel != nil {
				name, err := d.addSelector(selectors, sel, i+1)
				if err != nil {
					return nil, err
				}

				parents = []string{name}
			}

			parents = append(parents, previous...)

			for _, u := range pipe.Units() {
				name := pipe.Name() + "/" + u.Model.Name()

				err := d.addUnit(name, u, fitted, a.FittedLevels() != nil, planned)
				if err != nil {
					return nil, err
				}

				for _, p := range parents {
					if err := d.AddLink(p, name); err != nil {
						return nil, err
					}
				}

				current = append(current, name)
			}
		}

		if len(current) == 0 {
			continue
		}

		previous = current
	}

	err = d.AddStep(BlenderStep, graph.VertexAttribute("shape", "box"))
	if err != nil {
		return nil, err
	}

	if len(previous) == 0 {
		previous = []string{ReaderStep}
	}

	for _, p := range previous {
		if err := d.AddLink(p, BlenderStep); err != nil {
			return nil, err
		}
	}

	err = d.colour(planned)
	if err != nil {
		return nil, errors.Wrap(err, "unable to colour units")
	}

	return d, nil
}

// addSelector adds a selector fed by the reader once, however many pipelines share it.
func (d *Drawer) addSelector(known map[selection.Selector]string, sel selection.Selector, level int) (string, error) {
	if name, ok := known[sel]; ok {
		return name, nil
	}

	name := fmt.Sprintf("lvl%d_selector", level)
	if len(known) > 0 {
		name = fmt.Sprintf("%s_%d", name, len(known)+1)
	}

	label := name
	for _, st := range sel.Describe() {
		label += "\\n" + st.Kind
	}

	err := d.AddStep(name, graph.VertexAttribute("shape", "diamond"), graph.VertexAttribute("label", label))
	if err != nil {
		return "", err
	}

	err = d.AddLink(ReaderStep, name)
	if err != nil {
		return "", err
	}

	known[sel] = name

	return name, nil
}

func (d *Drawer) addUnit(name string, u nested.Unit, fitted map[string]struct{}, isFitted bool, planned map[string]time.Duration) error {
	attrs := []func(*graph.VertexProperties){graph.VertexAttribute("style", "filled")}

	if isFitted {
		if _, ok := fitted[name]; !ok {
			attrs = []func(*graph.VertexProperties){graph.VertexAttribute("style", "dashed")}
		}
	}

	if u.Timer != nil {
		p := u.Timer.Planned()
		planned[name] = p

		xlabel := "planned: " + p.String()
		if used := u.Timer.Metric().Consumed(); used > 0 {
			xlabel += ", used: " + used.String()
		}

		attrs = append(attrs, graph.VertexAttribute("xlabel", xlabel))
	}

	return d.AddStep(name, attrs...)
}

func fittedUnits(levels []engine.Level) map[string]struct{} {
	res := map[string]struct{}{}

	for _, level := range levels {
		for _, pipe := range level {
			for _, name := range pipe.Trained() {
				res[pipe.Name()+"/"+name] = struct{}{}
			}
		}
	}

	return res
}

// colour paints every unit from blue (smallest planned share) to red (largest).
func (d *Drawer) colour(planned map[string]time.Duration) error {
	if len(planned) == 0 {
		return nil
	}

	var minValue, maxValue time.Duration

	first := true
	for _, p := range planned {
		if first || p < minValue {
			minValue = p
		}

		if first || p > maxValue {
			maxValue = p
		}

		first = false
	}

	for name, p := range planned {
		fraction := 1.0
		if maxValue > minValue {
			fraction = float64(p-minValue) / float64(maxValue-minValue)
		}

		red := maxRGB * fraction
		blue := maxRGB - red

		rgb, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}

		err = d.store.UpdateVertex(name,
			graph.VertexAttribute("fillcolor", rgb.ToHEX().String()),
			graph.VertexAttribute("fontcolor", "white"),
		)
		if err != nil {
			return err
		}
	}

	return nil
}
