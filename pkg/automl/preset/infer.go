package preset

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/model"
)

const gpuTaskType = "GPU"

// DefaultAlgos is the level layout used when use_algos is auto.
var DefaultAlgos = [][]string{{family.LGB, family.LGBTuned, family.Linear, family.CB, family.CBTuned}}

// TuningIterations returns the number of tuning trials for a dataset of rows rows.
func TuningIterations(rows int) int {
	switch {
	case rows < 10_000:
		return 100
	case rows < 30_000:
		return 50
	case rows < 100_000:
		return 10
	default:
		return 5
	}
}

// InferAutoParams resolves auto options from the data size and the hardware and
// bounds every thread count by the instance limits.
func (t *TabularAutoML) InferAutoParams(rows int, multilevelAvailable bool) error {
	if t.cfg.Tuning.MaxTuningIter.IsAuto() {
		t.cfg.Tuning.MaxTuningIter.Resolve(TuningIterations(rows))
	}

	if t.cfg.General.UseAlgos.IsAuto() {
		algos := make([][]string, 0, 2)
		for _, lvl := range DefaultAlgos {
			algos = append(algos, append([]string(nil), lvl...))
		}

		if t.task.Name() == model.Multiclass && multilevelAvailable {
			algos = append(algos, []string{family.Linear, family.LGB})
		}

		t.cfg.General.UseAlgos.Resolve(algos)
	}

	if !t.cfg.General.NestedCV {
		t.cfg.NestedCV.CV = 1
	}

	ids, err := t.hw.ResolveGPUIDs(t.gpuIDs)
	if err != nil {
		return errors.Wrap(err, "unable to resolve gpu ids")
	}

	if t.hw.HasGPU() && len(ids) > 0 {
		devices := make([]string, len(ids))
		for i, id := range ids {
			devices[i] = strconv.Itoa(id)
		}

		t.cfg.CB.DefaultParams.TaskType = gpuTaskType
		t.cfg.CB.DefaultParams.Devices = strings.Join(devices, ":")
	}

	t.hw.Threads = t.hw.ClampThreads(0)
	t.cfg.LGB.DefaultParams.NumThreads = t.hw.ClampThreads(t.cfg.LGB.DefaultParams.NumThreads)
	t.cfg.CB.DefaultParams.ThreadCount = t.hw.ClampThreads(t.cfg.CB.DefaultParams.ThreadCount)
	t.cfg.Reader.NJobs = t.hw.ClampThreads(t.cfg.Reader.NJobs)

	return nil
}
