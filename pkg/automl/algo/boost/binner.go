package boost

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// nanBin holds missing values. Splits send it left.
const nanBin = 0

// binner maps raw values to histogram bins by per-feature quantile thresholds.
type binner struct {
	thresholds [][]float64
}

func newBinner(data *mat.Dense, maxBins int) *binner {
	rows, cols := data.Dims()
	if maxBins < 2 {
		maxBins = 2
	}

	b := &binner{thresholds: make([][]float64, cols)}
	values := make([]float64, 0, rows)

	for j := 0; j < cols; j++ {
		values = values[:0]

		for r := 0; r < rows; r++ {
			v := data.At(r, j)
			if !math.IsNaN(v) {
				values = append(values, v)
			}
		}

		b.thresholds[j] = quantileThresholds(values, maxBins-1)
	}

	return b
}

func quantileThresholds(values []float64, max int) []float64 {
	if len(values) == 0 {
		return nil
	}

	sort.Float64s(values)

	distinct := values[:0:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			distinct = append(distinct, v)
		}
	}

	if len(distinct) <= max {
		// midpoints keep every distinct value in its own bin
		res := make([]float64, 0, len(distinct)-1)
		for i := 1; i < len(distinct); i++ {
			res = append(res, (distinct[i-1]+distinct[i])/2)
		}

		return res
	}

	res := make([]float64, 0, max)

	for q := 1; q <= max; q++ {
		v := values[q*(len(values)-1)/(max+1)]
		if len(res) == 0 || v > res[len(res)-1] {
			res = append(res, v)
		}
	}

	return res
}

// bins returns the number of bins of feature j including the NaN bin.
func (b *binner) bins(j int) int {
	return len(b.thresholds[j]) + 2
}

func (b *binner) bin(j int, v float64) uint16 {
	if math.IsNaN(v) {
		return nanBin
	}

	return uint16(sort.SearchFloat64s(b.thresholds[j], v) + 1)
}

// transform bins a matrix whose columns follow pos.
func (b *binner) transform(data *mat.Dense, pos []int) [][]uint16 {
	rows, _ := data.Dims()
	res := make([][]uint16, rows)

	for r := 0; r < rows; r++ {
		raw := data.RawRowView(r)
		row := make([]uint16, len(pos))

		for j, p := range pos {
			row[j] = b.bin(j, raw[p])
		}

		res[r] = row
	}

	return res
}
