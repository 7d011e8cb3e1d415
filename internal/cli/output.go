package cli

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// writeCSV writes predictions with a header row. Missing values are left empty.
func writeCSV(w io.Writer, res *model.Predictions) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(res.Columns); err != nil {
		return errors.Wrap(err, "unable to write header")
	}

	rows := res.Len()
	record := make([]string, len(res.Columns))

	for i := 0; i < rows; i++ {
		for j := range record {
			v := res.Data.At(i, j)
			if math.IsNaN(v) {
				record[j] = ""

				continue
			}

			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}

		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "unable to write row %d", i)
		}
	}

	cw.Flush()

	return errors.Wrap(cw.Error(), "unable to flush predictions")
}
