package model

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Role is the inferred role of a feature column.
type Role string

const (
	RoleNumeric  Role = "Numeric"
	RoleCategory Role = "Category"
)

// HoldoutFold marks rows that are only ever used for training.
const HoldoutFold = -1

var (
	ErrNoFeatures     = errors.New("dataset has no feature columns")
	ErrUnknownFeature = errors.New("unknown feature")
	ErrShapeMismatch  = errors.New("shape mismatch")
)

// Dataset is a dense feature matrix with column roles, an optional target and a fold assignment.
type Dataset struct {
	Features []string
	Roles    map[string]Role
	Data     *mat.Dense
	// Target is nil for inference data.
	Target []float64
	// Folds holds the outer fold of every row, HoldoutFold for train-only rows.
	Folds []int
	// Classes is the number of classes for multiclass targets.
	Classes int
}

// NewDataset checks the shape of data against the feature names.
func NewDataset(features []string, roles map[string]Role, data *mat.Dense) (*Dataset, error) {
	if len(features) == 0 || data == nil {
		return nil, ErrNoFeatures
	}

	_, cols := data.Dims()
	if cols != len(features) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d columns for %d features", cols, len(features))
	}

	return &Dataset{Features: features, Roles: roles, Data: data}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d.Data == nil {
		return 0
	}

	rows, _ := d.Data.Dims()

	return rows
}

// Index returns the column position of a feature.
func (d *Dataset) Index(name string) (int, error) {
	for i, f := range d.Features {
		if f == name {
			return i, nil
		}
	}

	return -1, errors.Wrap(ErrUnknownFeature, name)
}

// Column returns a copy of the j-th column.
func (d *Dataset) Column(j int) []float64 {
	return mat.Col(nil, j, d.Data)
}

// Role returns the role of the feature, numeric when unknown.
func (d *Dataset) Role(name string) Role {
	if r, ok := d.Roles[name]; ok {
		return r
	}

	return RoleNumeric
}

// Rows returns a new dataset restricted to idx, in that order.
func (d *Dataset) Rows(idx []int) *Dataset {
	var data *mat.Dense
	if len(idx) > 0 {
		_, cols := d.Data.Dims()
		data = mat.NewDense(len(idx), cols, nil)
		for i, r := range idx {
			data.SetRow(i, d.Data.RawRowView(r))
		}
	}

	res := &Dataset{
		Features: d.Features,
		Roles:    d.Roles,
		Data:     data,
		Classes:  d.Classes,
	}

	if d.Target != nil {
		res.Target = make([]float64, len(idx))
		for i, r := range idx {
			res.Target[i] = d.Target[r]
		}
	}

	if d.Folds != nil {
		res.Folds = make([]int, len(idx))
		for i, r := range idx {
			res.Folds[i] = d.Folds[r]
		}
	}

	return res
}

// Select returns a dataset with the named columns only, in the given order.
func (d *Dataset) Select(names []string) (*Dataset, error) {
	if len(names) == 0 {
		return nil, ErrNoFeatures
	}

	pos := make([]int, len(names))
	roles := make(map[string]Role, len(names))

	for i, name := range names {
		j, err := d.Index(name)
		if err != nil {
			return nil, err
		}

		pos[i] = j
		roles[name] = d.Role(name)
	}

	rows := d.Len()
	if rows == 0 {
		return d.With(names, roles, nil), nil
	}

	data := mat.NewDense(rows, len(names), nil)

	for r := 0; r < rows; r++ {
		src := d.Data.RawRowView(r)
		dst := data.RawRowView(r)

		for i, j := range pos {
			dst[i] = src[j]
		}
	}

	return d.With(names, roles, data), nil
}

// With returns a dataset sharing target, folds and classes but holding other features.
func (d *Dataset) With(features []string, roles map[string]Role, data *mat.Dense) *Dataset {
	return &Dataset{
		Features: features,
		Roles:    roles,
		Data:     data,
		Target:   d.Target,
		Folds:    d.Folds,
		Classes:  d.Classes,
	}
}

// Append returns a dataset with extra numeric columns appended on the right.
func (d *Dataset) Append(names []string, extra *mat.Dense) (*Dataset, error) {
	rows, cols := extra.Dims()
	if rows != d.Len() || cols != len(names) {
		return nil, errors.Wrapf(ErrShapeMismatch, "append %dx%d to %d rows", rows, cols, d.Len())
	}

	_, own := d.Data.Dims()
	data := mat.NewDense(rows, own+cols, nil)

	for r := 0; r < rows; r++ {
		dst := data.RawRowView(r)
		copy(dst, d.Data.RawRowView(r))
		copy(dst[own:], extra.RawRowView(r))
	}

	features := make([]string, 0, own+cols)
	features = append(features, d.Features...)
	features = append(features, names...)

	roles := make(map[string]Role, len(features))
	for k, v := range d.Roles {
		roles[k] = v
	}

	for _, n := range names {
		roles[n] = RoleNumeric
	}

	return d.With(features, roles, data), nil
}

// FoldIDs returns the distinct outer folds in ascending order, ignoring holdout rows.
func (d *Dataset) FoldIDs() []int {
	seen := make(map[int]struct{})
	ids := []int{}

	for _, f := range d.Folds {
		if f == HoldoutFold {
			continue
		}

		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}

			ids = append(ids, f)
		}
	}

	sort.Ints(ids)

	return ids
}

// Split returns the row positions outside and inside fold k.
func (d *Dataset) Split(k int) (train, valid []int) {
	for i, f := range d.Folds {
		if f == k {
			valid = append(valid, i)
		} else {
			train = append(train, i)
		}
	}

	return train, valid
}

// Outputs returns the width of the prediction matrix for the task.
func (d *Dataset) Outputs(task *Task) int {
	if task.Name() == Multiclass {
		return d.Classes
	}

	return 1
}

// FiniteRows returns the rows where every matrix has only finite values.
func FiniteRows(rows int, preds ...*mat.Dense) []int {
	res := make([]int, 0, rows)

outer:
	for r := 0; r < rows; r++ {
		for _, p := range preds {
			for _, v := range p.RawRowView(r) {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue outer
				}
			}
		}

		res = append(res, r)
	}

	return res
}

// Stack appends the rows of b below the rows of a. Both must share features.
func Stack(a, b *Dataset) (*Dataset, error) {
	if len(a.Features) != len(b.Features) {
		return nil, errors.Wrap(ErrShapeMismatch, "stacked datasets differ in features")
	}

	aligned, err := b.Select(a.Features)
	if err != nil {
		return nil, err
	}

	rows := a.Len() + aligned.Len()
	if rows == 0 {
		return a, nil
	}

	data := mat.NewDense(rows, len(a.Features), nil)
	for r := 0; r < a.Len(); r++ {
		data.SetRow(r, a.Data.RawRowView(r))
	}

	for r := 0; r < aligned.Len(); r++ {
		data.SetRow(a.Len()+r, aligned.Data.RawRowView(r))
	}

	res := &Dataset{
		Features: a.Features,
		Roles:    a.Roles,
		Data:     data,
		Classes:  a.Classes,
	}

	if a.Target != nil && b.Target != nil {
		res.Target = append(append([]float64(nil), a.Target...), b.Target...)
	}

	if a.Folds != nil && b.Folds != nil {
		res.Folds = append(append([]int(nil), a.Folds...), b.Folds...)
	}

	return res, nil
}
