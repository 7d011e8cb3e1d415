package cli_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-automl/internal/cli"
)

const linearOnly = `general_params:
  use_algos: [[linear_l2]]
reader_params:
  cv: 3
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func regressionCSV(rows int, withTarget bool) string {
	var sb strings.Builder

	sb.WriteString("x,z")
	if withTarget {
		sb.WriteString(",y")
	}

	sb.WriteString("\n")

	for i := 0; i < rows; i++ {
		x := float64(i % 23)
		z := float64(i % 7)
		fmt.Fprintf(&sb, "%g,%g", x, z)

		if withTarget {
			fmt.Fprintf(&sb, ",%g", 2*x-z+1)
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args []string
		want []string
	}{
		"template": {args: []string{"config"}, want: []string{"general_params:", "selection_params:"}},
		"list":     {args: []string{"config", "--list"}, want: []string{"conf_0", "conf_6", "tabular"}},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			require.NoError(t, cli.Execute(context.Background(), &out, tc.args))

			for _, w := range tc.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	tcs := map[string][]string{
		"missing train":     {"run", "--target", "y"},
		"missing target":    {"run", "--train", "train.csv"},
		"several configs":   {"run", "--train", "train.csv", "--target", "y", "--config", "conf_0,conf_1"},
		"unknown flag":      {"run", "--nope"},
		"invalid log level": {"run", "--train", "train.csv", "--target", "y", "--log-level", "loud"},
		"unknown task":      {"run", "--train", "train.csv", "--target", "y", "--task", "ranking"},
		"inadmissible loss": {"run", "--train", "train.csv", "--target", "y", "--task", "binary", "--loss", "huber"},
	}

	for name, args := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := cli.Execute(context.Background(), &bytes.Buffer{}, args)
			require.Error(t, err)

			var exitErr *cli.ExitError
			require.True(t, errors.As(err, &exitErr), err.Error())
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	train := writeFile(t, dir, "train.csv", regressionCSV(150, true))
	test := writeFile(t, dir, "test.csv", regressionCSV(11, false))
	conf := writeFile(t, dir, "linear.yml", linearOnly)
	output := filepath.Join(dir, "pred.csv")
	graph := filepath.Join(dir, "automl.dot")

	err := cli.Execute(context.Background(), &bytes.Buffer{}, []string{
		"run",
		"--train", train,
		"--test", test,
		"--target", "y",
		"--task", "reg",
		"--config", conf,
		"--cpu-limit", "2",
		"--gpu-ids", "none",
		"--batch-size", "4",
		"--jobs", "2",
		"--output", output,
		"--graph", graph,
	})
	require.NoError(t, err)

	file, err := os.Open(output)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 12)
	assert.Equal(t, []string{"prediction"}, records[0])

	dot, err := os.ReadFile(graph)
	require.NoError(t, err)
	assert.Contains(t, string(dot), `"lvl1_linear/linear_l2" -> "blender"`)
}

func TestRunEnvironment(t *testing.T) {
	dir := t.TempDir()
	train := writeFile(t, dir, "train.csv", regressionCSV(90, true))
	conf := writeFile(t, dir, "linear.yml", linearOnly)

	t.Setenv("AUTOML_TRAIN", train)
	t.Setenv("AUTOML_TARGET", "y")
	t.Setenv("AUTOML_TASK", "reg")
	t.Setenv("AUTOML_CPU_LIMIT", "1")
	t.Setenv("AUTOML_GPU_IDS", "none")

	var out bytes.Buffer

	err := cli.Execute(context.Background(), &out, []string{"run", "--config", conf})
	require.NoError(t, err)

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 91)
}
