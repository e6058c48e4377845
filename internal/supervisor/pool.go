package supervisor

import (
	"context"
	"sync"
)

// runBulk executes op for each name using at most MaxWorkers concurrent
// workers. Jobs are handed out FIFO in submission order over an unbuffered
// channel; requests beyond the bound queue until a worker frees up. Results
// keep the submission order and one failure never aborts the batch.
func (s *Supervisor) runBulk(ctx context.Context, names []string, op func(string) (Status, error)) []Result {
	res := make([]Result, len(names))
	if len(names) == 0 {
		return res
	}
	workers := s.opts.MaxWorkers
	if workers > len(names) {
		workers = len(names)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					res[i] = Result{Name: names[i], Err: err, Error: err.Error()}
					continue
				}
				st, err := op(names[i])
				r := Result{Name: names[i], Status: st, Err: err}
				if err != nil {
					r.Error = err.Error()
				}
				res[i] = r
			}
		}()
	}
	for i := range names {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return res
}
