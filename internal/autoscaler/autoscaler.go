// Package autoscaler sizes worker pools.
package autoscaler

// Workers returns how many goroutines should process batches: never more than
// requested jobs, batches or cpus, and at least one.
func Workers(nJobs, batches, cpus int) int {
	res := nJobs
	if batches < res {
		res = batches
	}

	if cpus > 0 && cpus < res {
		res = cpus
	}

	if res < 1 {
		return 1
	}

	return res
}

// Batches splits rows into batches of batchSize rows and returns their count.
// A non-positive batch size means one batch.
func Batches(rows, batchSize int) int {
	if rows <= 0 {
		return 0
	}

	if batchSize <= 0 || batchSize >= rows {
		return 1
	}

	return (rows + batchSize - 1) / batchSize
}
