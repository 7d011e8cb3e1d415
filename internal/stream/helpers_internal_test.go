package stream

import (
	"testing"

	"k8s.io/utils/clock"
)

func createInputChan(t *testing.T, total int) chan int {
	t.Helper()
	inputChan := make(chan int)
	go func() {
		defer close(inputChan)
		for i := 0; i < total; i++ {
			inputChan <- i
		}
	}()

	return inputChan
}

func processOutputChan(t *testing.T, output <-chan int) (res []int) {
	t.Helper()
	for out := range output {
		res = append(res, out)
	}

	return res
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()

	return &Pipeline{clock: clock.RealClock{}}
}
