package reader

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-automl/pkg/automl/config"
)

var (
	ErrUnsupportedSource = errors.New("unsupported data source")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrRaggedSource      = errors.New("columns differ in length")
)

// Column is one named column, numeric when Strings is nil.
type Column struct {
	Name    string
	Numbers []float64
	Strings []string
}

// IsNumeric reports whether the column holds numbers.
func (c *Column) IsNumeric() bool { return c.Strings == nil }

// Len returns the number of values.
func (c *Column) Len() int {
	if c.IsNumeric() {
		return len(c.Numbers)
	}

	return len(c.Strings)
}

// Missing reports whether row i has no value.
func (c *Column) Missing(i int) bool {
	if c.IsNumeric() {
		return math.IsNaN(c.Numbers[i])
	}

	return c.Strings[i] == ""
}

// Key returns a comparable representation of row i.
func (c *Column) Key(i int) string {
	if c.IsNumeric() {
		return strconv.FormatFloat(c.Numbers[i], 'g', -1, 64)
	}

	return c.Strings[i]
}

func (c *Column) slice(from, to int) Column {
	res := Column{Name: c.Name}
	if c.IsNumeric() {
		res.Numbers = c.Numbers[from:to]
	} else {
		res.Strings = c.Strings[from:to]
	}

	return res
}

// Table is an in-memory columnar table.
type Table struct {
	Columns []Column
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}

	return t.Columns[0].Len()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	res := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		res[i] = c.Name
	}

	return res
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], nil
		}
	}

	return nil, errors.Wrap(ErrUnknownColumn, name)
}

// Project keeps the named columns, in the given order.
func (t *Table) Project(names []string) (*Table, error) {
	res := &Table{Columns: make([]Column, 0, len(names))}

	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}

		res.Columns = append(res.Columns, *c)
	}

	return res, nil
}

// Slice returns the rows [from, to). Columns share memory with t.
func (t *Table) Slice(from, to int) *Table {
	res := &Table{Columns: make([]Column, len(t.Columns))}
	for i := range t.Columns {
		res.Columns[i] = t.Columns[i].slice(from, to)
	}

	return res
}

// ReadData turns a source into a table. Supported sources are a CSV file path,
// map[string][]float64, map[string][]string, [][]float64 rows named by features and *Table.
// features, when set, also restricts the columns of named sources.
func ReadData(ctx context.Context, src any, features []string, cpuLimit int, params config.ReadCSVParams) (*Table, error) {
	var (
		table *Table
		err   error
	)

	switch s := src.(type) {
	case string:
		table, err = readCSVFile(ctx, s, cpuLimit, params)
	case *Table:
		table = s
	case map[string][]float64:
		table, err = fromNumbers(s)
	case map[string][]string:
		table, err = fromStrings(s)
	case [][]float64:
		return fromRows(s, features)
	default:
		return nil, errors.Wrapf(ErrUnsupportedSource, "%T", src)
	}

	if err != nil {
		return nil, err
	}

	if len(features) > 0 {
		return table.Project(features)
	}

	return table, nil
}

// ReadBatch reads a source and splits it into consecutive batches of batchSize rows.
// A non-positive batchSize splits the rows into nJobs batches of near equal size.
func ReadBatch(ctx context.Context, src any, features []string, nJobs, batchSize int, params config.ReadCSVParams) ([]*Table, error) {
	table, err := ReadData(ctx, src, features, nJobs, params)
	if err != nil {
		return nil, err
	}

	rows := table.Rows()
	if batchSize <= 0 {
		batchSize = (rows + max(nJobs, 1) - 1) / max(nJobs, 1)
	}

	if batchSize <= 0 || batchSize >= rows {
		return []*Table{table}, nil
	}

	res := make([]*Table, 0, rows/batchSize+1)
	for from := 0; from < rows; from += batchSize {
		res = append(res, table.Slice(from, min(from+batchSize, rows)))
	}

	return res, nil
}

func readCSVFile(ctx context.Context, path string, cpuLimit int, params config.ReadCSVParams) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq", ".feather", ".arrow":
		return nil, errors.Wrap(ErrUnsupportedSource, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	return ReadCSV(ctx, f, cpuLimit, params)
}

// ReadCSV parses delimited text with a header line. Columns whose non-missing values all
// parse as numbers become numeric. Column parsing runs on at most cpuLimit goroutines.
func ReadCSV(ctx context.Context, r io.Reader, cpuLimit int, params config.ReadCSVParams) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	if params.Delimiter != "" {
		cr.Comma = []rune(params.Delimiter)[0]
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read csv")
	}

	if len(records) == 0 {
		return nil, errors.Wrap(ErrUnsupportedSource, "empty csv")
	}

	header := records[0]
	body := records[1:]

	keep := make([]int, 0, len(header))
	if len(params.UseCols) > 0 {
		want := make(map[string]struct{}, len(params.UseCols))
		for _, c := range params.UseCols {
			want[c] = struct{}{}
		}

		for j, name := range header {
			if _, ok := want[name]; ok {
				keep = append(keep, j)
			}
		}
	} else {
		for j := range header {
			keep = append(keep, j)
		}
	}

	na := make(map[string]struct{}, len(params.NAValues))
	for _, v := range params.NAValues {
		na[v] = struct{}{}
	}

	table := &Table{Columns: make([]Column, len(keep))}

	grp, gCtx := errgroup.WithContext(ctx)
	grp.SetLimit(max(cpuLimit, 1))

	for slot, j := range keep {
		grp.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			table.Columns[slot] = parseColumn(header[j], j, body, na)

			return nil
		})
	}

	err = grp.Wait()
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse csv columns")
	}

	return table, nil
}

func parseColumn(name string, j int, body [][]string, na map[string]struct{}) Column {
	values := make([]string, len(body))
	numbers := make([]float64, len(body))
	numeric := true

	for i, rec := range body {
		v := strings.TrimSpace(rec[j])
		if _, ok := na[v]; ok {
			v = ""
		}

		values[i] = v

		if v == "" {
			numbers[i] = math.NaN()

			continue
		}

		if numeric {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				numeric = false

				continue
			}

			numbers[i] = f
		}
	}

	if numeric {
		return Column{Name: name, Numbers: numbers}
	}

	return Column{Name: name, Strings: values}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func fromNumbers(src map[string][]float64) (*Table, error) {
	table := &Table{}

	for _, name := range sortedKeys(src) {
		table.Columns = append(table.Columns, Column{Name: name, Numbers: src[name]})
	}

	return table, checkLengths(table)
}

func fromStrings(src map[string][]string) (*Table, error) {
	table := &Table{}

	for _, name := range sortedKeys(src) {
		table.Columns = append(table.Columns, Column{Name: name, Strings: src[name]})
	}

	return table, checkLengths(table)
}

func fromRows(rows [][]float64, features []string) (*Table, error) {
	if len(features) == 0 {
		return nil, errors.Wrap(ErrUnsupportedSource, "rows need feature names")
	}

	table := &Table{Columns: make([]Column, len(features))}

	for j, name := range features {
		col := make([]float64, len(rows))

		for i, row := range rows {
			if len(row) != len(features) {
				return nil, errors.Wrapf(ErrRaggedSource, "row %d has %d values", i, len(row))
			}

			col[i] = row[j]
		}

		table.Columns[j] = Column{Name: name, Numbers: col}
	}

	return table, nil
}

func checkLengths(t *Table) error {
	for _, c := range t.Columns {
		if c.Len() != t.Rows() {
			return errors.Wrap(ErrRaggedSource, c.Name)
		}
	}

	return nil
}
