package utilized

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/mat"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/askiada/go-automl/pkg/automl/hardware"
	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/preset"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

// fakeRunner predicts a constant and advances the clock by cost on every fit.
type fakeRunner struct {
	clk   *testingclock.FakeClock
	cost  time.Duration
	value float64
	err   error
}

func (f *fakeRunner) constant(rows int) *mat.Dense {
	data := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		data.Set(i, 0, f.value)
	}

	return data
}

func (f *fakeRunner) FitPredict(_ context.Context, train any, roles reader.Roles, _ ...preset.FitOption) (*model.Predictions, error) {
	f.clk.Step(f.cost)

	if f.err != nil {
		return nil, f.err
	}

	table := train.(*reader.Table)

	col, err := table.Column(roles.Target)
	if err != nil {
		return nil, err
	}

	return &model.Predictions{
		Data:    f.constant(table.Rows()),
		Columns: []string{"prediction"},
		Target:  append([]float64(nil), col.Numbers...),
	}, nil
}

func (f *fakeRunner) Predict(_ context.Context, data any, _ ...preset.PredictOption) (*model.Predictions, error) {
	table := data.(*reader.Table)

	return &model.Predictions{Data: f.constant(table.Rows()), Columns: []string{"prediction"}}, nil
}

type created struct {
	config string
	seed   int64
}

func table(rows int) *reader.Table {
	x := make([]float64, rows)
	y := make([]float64, rows)

	for i := range x {
		x[i] = float64(i)
		y[i] = 1
	}

	return &reader.Table{Columns: []reader.Column{{Name: "x", Numbers: x}, {Name: "y", Numbers: y}}}
}

var _ = Describe("AutoML", func() {
	var (
		ctx     context.Context
		clk     *testingclock.FakeClock
		task    *model.Task
		calls   []created
		values  map[string]float64
		cost    time.Duration
		failing map[string]bool
	)

	newAutoML := func(opts ...Option) *AutoML {
		a := New(task, append([]Option{WithClock(clk)}, opts...)...)
		a.newRunner = func(cfg string, seed int64, _ time.Duration) (runner, error) {
			calls = append(calls, created{config: cfg, seed: seed})

			var err error
			if failing[cfg] {
				err = errors.New("boom")
			}

			return &fakeRunner{clk: clk, cost: cost, value: values[cfg], err: err}, nil
		}

		return a
	}

	BeforeEach(func() {
		ctx = context.Background()
		clk = testingclock.NewFakeClock(time.Unix(0, 0))
		calls = nil
		values = map[string]float64{"a": 1, "b": 1}
		cost = 3 * time.Second
		failing = map[string]bool{}

		var err error
		task, err = model.NewTask(model.Regression)
		Expect(err).NotTo(HaveOccurred())
	})

	It("defaults to the seven embedded configurations", func() {
		Expect(DefaultConfigs()).To(Equal([]string{"conf_0", "conf_1", "conf_2", "conf_3", "conf_4", "conf_5", "conf_6"}))

		a := New(task)
		Expect(a.configs).To(Equal(DefaultConfigs()))
		Expect(a.dropLast).To(BeTrue())
		Expect(a.maxRuns).To(Equal(DefaultMaxRunsPerConfig))
		Expect(a.randomState).To(Equal(int64(DefaultRandomState)))
	})

	Context("with a deadline shorter than the runs", func() {
		It("stops at the deadline and drops the run cut by it", func() {
			a := newAutoML(WithConfigs("a", "b"), WithTimeout(10*time.Second))

			res, err := a.FitPredict(ctx, table(20), reader.Roles{Target: "y"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Len()).To(Equal(20))

			Expect(calls).To(Equal([]created{{"a", 42}, {"b", 43}, {"a", 44}, {"b", 45}}))

			runs := a.Runs()
			Expect(runs).To(HaveLen(4))
			Expect(runs[3].Finished).To(BeFalse())
			Expect(runs[2].Finished).To(BeTrue())
			Expect(runs[3].Timeout).To(Equal(time.Second))
			Expect(runs[1].Iteration).To(Equal(0))
			Expect(runs[2].Iteration).To(Equal(1))

			Expect(a.Configs()).To(Equal([]string{"a", "b"}))
			Expect(a.groups[0].runs).To(HaveLen(2))
			Expect(a.groups[1].runs).To(HaveLen(1))
		})

		It("keeps the last run without drop_last", func() {
			a := newAutoML(WithConfigs("a", "b"), WithTimeout(10*time.Second), WithDropLast(false))

			_, err := a.FitPredict(ctx, table(20), reader.Roles{Target: "y"})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.groups[1].runs).To(HaveLen(2))
		})

		It("keeps a single unfinished run", func() {
			cost = time.Minute
			a := newAutoML(WithConfigs("a", "b"), WithTimeout(10*time.Second))

			_, err := a.FitPredict(ctx, table(20), reader.Roles{Target: "y"})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Runs()).To(HaveLen(1))
			Expect(a.Configs()).To(Equal([]string{"a"}))
		})
	})

	It("bounds the multistart loop by max_runs_per_config", func() {
		a := newAutoML(WithConfigs("a", "b", "c"), WithTimeout(time.Hour), WithMaxRunsPerConfig(2), WithRandomState(7))

		_, err := a.FitPredict(ctx, table(10), reader.Roles{Target: "y"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Runs()).To(HaveLen(6))
		Expect(calls[5]).To(Equal(created{"c", 12}))

		ids := map[string]struct{}{}
		for _, r := range a.Runs() {
			Expect(r.Finished).To(BeTrue())
			ids[r.ID.String()] = struct{}{}
		}

		Expect(ids).To(HaveLen(6))
	})

	It("weights the configurations by their out-of-fold quality", func() {
		values = map[string]float64{"good": 1, "bad": 5}
		a := newAutoML(WithConfigs("good", "bad"), WithTimeout(time.Hour), WithMaxRunsPerConfig(1))

		res, err := a.FitPredict(ctx, table(30), reader.Roles{Target: "y"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Weights()).To(HaveLen(2))
		Expect(a.Weights()[0]).To(BeNumerically(">", a.Weights()[1]))
		Expect(res.Data.At(0, 0)).To(BeNumerically("~", 1, 1e-9))

		pred, err := a.Predict(ctx, table(4))
		Expect(err).NotTo(HaveOccurred())
		Expect(pred.Len()).To(Equal(4))
		Expect(pred.Data.At(3, 0)).To(BeNumerically("~", 1, 1e-9))
	})

	It("skips failing runs and reports them", func() {
		failing["b"] = true
		rec := metrics.NewRecorder()
		a := newAutoML(WithConfigs("a", "b"), WithTimeout(time.Hour), WithMaxRunsPerConfig(1), WithMetrics(rec))

		_, err := a.FitPredict(ctx, table(10), reader.Roles{Target: "y"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Configs()).To(Equal([]string{"a"}))
		Expect(testutil.ToFloat64(rec.Runs().WithLabelValues("b", metrics.StatusFailed))).To(Equal(1.0))
		Expect(testutil.ToFloat64(rec.Runs().WithLabelValues("a", metrics.StatusFinished))).To(Equal(1.0))
	})

	It("fails when every run fails", func() {
		failing["a"] = true
		a := newAutoML(WithConfigs("a"), WithTimeout(time.Hour), WithMaxRunsPerConfig(2))

		_, err := a.FitPredict(ctx, table(10), reader.Roles{Target: "y"})
		Expect(errors.Is(err, ErrNoRuns)).To(BeTrue())
	})

	It("refuses to predict before fit", func() {
		_, err := newAutoML().Predict(ctx, table(3))
		Expect(errors.Is(err, ErrNotFitted)).To(BeTrue())
	})

	It("fits real presets", func() {
		a := New(task,
			WithConfigs("conf_0", "conf_3"),
			WithTimeout(time.Minute),
			WithMaxRunsPerConfig(1),
			WithPresetOptions(
				preset.WithHardware(hardware.New(2, 2, nil)),
				preset.WithOverrides(map[string]map[string]any{
					"general_params":   {"use_algos": [][]string{{"linear_l2", "lgb"}}},
					"lgb_params":       {"default_params": map[string]any{"num_trees": 10}},
					"nested_cv_params": {"cv": 2},
					"reader_params":    {"cv": 2},
				}),
			),
		)

		data := table(120)
		for i := range data.Columns[1].Numbers {
			data.Columns[1].Numbers[i] = 2 * float64(i)
		}

		res, err := a.FitPredict(ctx, data, reader.Roles{Target: "y"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Len()).To(Equal(120))
		Expect(a.Runs()).To(HaveLen(2))
		Expect(a.Runs()[0].Preset()).NotTo(BeNil())
		Expect(a.Runs()[1].Seed).To(Equal(int64(43)))

		pred, err := a.Predict(ctx, table(5))
		Expect(err).NotTo(HaveOccurred())
		Expect(pred.Columns).To(Equal([]string{"prediction"}))
	})
})
