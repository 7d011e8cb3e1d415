// Package reader ingests tabular sources and turns them into model datasets.
//
// A Reader is fitted once on the training table: it infers the role of every column,
// drops constant and mostly-missing columns, encodes categories and the target and
// assigns the outer cross-validation folds. The fitted reader then reads new tables
// with the same layout.
package reader

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/model"
)

var (
	ErrNotFitted = errors.New("reader is not fitted")
	ErrNoTarget  = errors.New("target column is missing")
	ErrBadTarget = errors.New("target does not fit the task")
)

// Roles names the special columns of a training table. Unlisted columns are inferred.
type Roles struct {
	Target   string
	Drop     []string
	Numeric  []string
	Category []string
	// Folds names a column holding user defined outer folds.
	Folds string
}

// Reader infers roles on the training table and reads tables with the same layout.
type Reader struct {
	task   *model.Task
	params config.ReaderParams

	target     string
	used       []string
	roles      map[string]model.Role
	categories map[string]map[string]float64
	classes    []string
	classIndex map[string]float64
	dropped    []string
}

// New creates an unfitted reader.
func New(task *model.Task, params config.ReaderParams) *Reader {
	return &Reader{task: task, params: params}
}

// UsedFeatures returns the feature columns kept by Fit.
func (r *Reader) UsedFeatures() ([]string, error) {
	if r == nil || r.used == nil {
		return nil, ErrNotFitted
	}

	return append([]string(nil), r.used...), nil
}

// Classes returns the original labels in encoded order, nil for regression.
func (r *Reader) Classes() []string { return r.classes }

// Dropped returns the columns removed by the constant and missing value checks.
func (r *Reader) Dropped() []string { return r.dropped }

// Roles returns the inferred role of every used feature.
func (r *Reader) Roles() map[string]model.Role { return r.roles }

// Fit infers roles and encodings from table and returns the training dataset.
func (r *Reader) Fit(ctx context.Context, table *Table, roles Roles) (*model.Dataset, error) {
	logger := logr.FromContextOrDiscard(ctx)

	targetCol, err := table.Column(roles.Target)
	if err != nil {
		return nil, errors.Wrap(ErrNoTarget, roles.Target)
	}

	keepRows := make([]int, 0, table.Rows())
	for i := 0; i < table.Rows(); i++ {
		if !targetCol.Missing(i) {
			keepRows = append(keepRows, i)
		}
	}

	r.target = roles.Target

	target, err := r.fitTarget(targetCol, keepRows)
	if err != nil {
		return nil, err
	}

	skip := map[string]struct{}{roles.Target: {}}
	for _, d := range roles.Drop {
		skip[d] = struct{}{}
	}

	if roles.Folds != "" {
		skip[roles.Folds] = struct{}{}
	}

	explicit := map[string]model.Role{}
	for _, n := range roles.Numeric {
		explicit[n] = model.RoleNumeric
	}

	for _, c := range roles.Category {
		explicit[c] = model.RoleCategory
	}

	r.used = []string{}
	r.roles = map[string]model.Role{}
	r.categories = map[string]map[string]float64{}
	r.dropped = nil

	for i := range table.Columns {
		col := &table.Columns[i]
		if _, ok := skip[col.Name]; ok {
			continue
		}

		if reason := r.dropReason(col, keepRows); reason != "" {
			logger.V(1).Info("dropping column", "column", col.Name, "reason", reason)
			r.dropped = append(r.dropped, col.Name)

			continue
		}

		role, ok := explicit[col.Name]
		if !ok {
			role = model.RoleNumeric
			if !col.IsNumeric() {
				role = model.RoleCategory
			}
		}

		if role == model.RoleCategory {
			r.categories[col.Name] = encodeLevels(col, keepRows)
		}

		r.used = append(r.used, col.Name)
		r.roles[col.Name] = role
	}

	if len(r.used) == 0 {
		return nil, errors.Wrap(model.ErrNoFeatures, "every column was dropped")
	}

	ds, err := r.read(ctx, table, keepRows)
	if err != nil {
		return nil, err
	}

	ds.Target = target
	ds.Classes = len(r.classes)

	ds.Folds, err = r.folds(table, roles.Folds, keepRows, target)
	if err != nil {
		return nil, err
	}

	logger.Info("reader fitted", "rows", ds.Len(), "features", len(r.used), "dropped", len(r.dropped))

	return ds, nil
}

// Read converts a table with the training layout. The target is decoded when present.
func (r *Reader) Read(ctx context.Context, table *Table) (*model.Dataset, error) {
	if r.used == nil {
		return nil, ErrNotFitted
	}

	rows := make([]int, table.Rows())
	for i := range rows {
		rows[i] = i
	}

	ds, err := r.read(ctx, table, rows)
	if err != nil {
		return nil, err
	}

	ds.Classes = len(r.classes)

	if col, err := table.Column(r.target); err == nil {
		ds.Target, err = r.encodeTarget(col, rows)
		if err != nil {
			return nil, err
		}
	}

	return ds, nil
}

func (r *Reader) read(ctx context.Context, table *Table, rows []int) (*model.Dataset, error) {
	data := mat.NewDense(max(len(rows), 1), len(r.used), nil)

	grp, gCtx := errgroup.WithContext(ctx)
	grp.SetLimit(max(r.params.NJobs, 1))

	for j, name := range r.used {
		grp.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			col, err := table.Column(name)
			if err != nil {
				return err
			}

			levels := r.categories[name]

			for i, row := range rows {
				data.Set(i, j, r.value(col, row, levels))
			}

			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read columns")
	}

	if len(rows) == 0 {
		return &model.Dataset{Features: r.used, Roles: r.roles}, nil
	}

	return model.NewDataset(r.used, r.roles, data)
}

func (r *Reader) value(col *Column, row int, levels map[string]float64) float64 {
	if col.Missing(row) {
		return math.NaN()
	}

	if levels != nil {
		code, ok := levels[col.Key(row)]
		if !ok {
			return math.NaN()
		}

		return code
	}

	if col.IsNumeric() {
		return col.Numbers[row]
	}

	f, err := strconv.ParseFloat(col.Strings[row], 64)
	if err != nil {
		return math.NaN()
	}

	return f
}

func (r *Reader) dropReason(col *Column, rows []int) string {
	if len(rows) == 0 {
		return ""
	}

	missing := 0
	counts := map[string]int{}

	for _, i := range rows {
		if col.Missing(i) {
			missing++

			continue
		}

		counts[col.Key(i)]++
	}

	if float64(missing)/float64(len(rows)) > r.params.MaxNaNRate {
		return "nan rate"
	}

	top := missing
	for _, c := range counts {
		top = max(top, c)
	}

	if len(counts) <= 1 || float64(top)/float64(len(rows)) > r.params.MaxConstantRate {
		return "constant"
	}

	return ""
}

func encodeLevels(col *Column, rows []int) map[string]float64 {
	levels := map[string]struct{}{}

	for _, i := range rows {
		if !col.Missing(i) {
			levels[col.Key(i)] = struct{}{}
		}
	}

	names := sortedKeys(levels)
	if col.IsNumeric() {
		sort.Slice(names, func(a, b int) bool {
			fa, _ := strconv.ParseFloat(names[a], 64)
			fb, _ := strconv.ParseFloat(names[b], 64)

			return fa < fb
		})
	}

	res := make(map[string]float64, len(names))
	for code, n := range names {
		res[n] = float64(code)
	}

	return res
}

func (r *Reader) fitTarget(col *Column, rows []int) ([]float64, error) {
	r.classes = nil
	r.classIndex = nil

	if r.task.Name() == model.Regression {
		return r.encodeTarget(col, rows)
	}

	levels := encodeLevels(col, rows)
	if len(levels) < 2 {
		return nil, errors.Wrapf(ErrBadTarget, "%d distinct labels", len(levels))
	}

	if r.task.Name() == model.Binary && len(levels) != 2 {
		return nil, errors.Wrapf(ErrBadTarget, "binary task with %d labels", len(levels))
	}

	r.classes = make([]string, len(levels))
	for name, code := range levels {
		r.classes[int(code)] = name
	}

	r.classIndex = levels

	return r.encodeTarget(col, rows)
}

func (r *Reader) encodeTarget(col *Column, rows []int) ([]float64, error) {
	res := make([]float64, len(rows))

	for i, row := range rows {
		if col.Missing(row) {
			res[i] = math.NaN()

			continue
		}

		if r.classIndex != nil {
			code, ok := r.classIndex[col.Key(row)]
			if !ok {
				return nil, errors.Wrapf(ErrBadTarget, "unknown label %q", col.Key(row))
			}

			res[i] = code

			continue
		}

		v := r.value(col, row, nil)
		if math.IsNaN(v) {
			return nil, errors.Wrapf(ErrBadTarget, "non numeric value %q", col.Key(row))
		}

		res[i] = v
	}

	return res, nil
}

// folds returns user folds when a fold column is given, otherwise cv folds,
// stratified by class for classification tasks.
func (r *Reader) folds(table *Table, foldCol string, rows []int, target []float64) ([]int, error) {
	res := make([]int, len(rows))

	if foldCol != "" {
		col, err := table.Column(foldCol)
		if err != nil {
			return nil, err
		}

		for i, row := range rows {
			v := r.value(col, row, nil)
			if math.IsNaN(v) {
				res[i] = model.HoldoutFold

				continue
			}

			res[i] = int(v)
		}

		return res, nil
	}

	cv := max(r.params.CV, 1)
	rng := rand.New(rand.NewSource(r.params.RandomState))

	groups := map[float64][]int{}
	if r.task.IsClassification() {
		for i, y := range target {
			groups[y] = append(groups[y], i)
		}
	} else {
		all := make([]int, len(rows))
		for i := range all {
			all[i] = i
		}

		groups[0] = all
	}

	keys := make([]float64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}

	sort.Float64s(keys)

	offset := 0

	for _, k := range keys {
		idx := groups[k]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })

		for i, row := range idx {
			res[row] = (offset + i) % cv
		}

		offset += len(idx)
	}

	return res, nil
}
