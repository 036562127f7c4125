package pool

import (
	"context"
	"fmt"
	"sync"
)

// Map 在池上并行执行 fn(i)，i ∈ [0, n)，等待全部完成。
// 结果与错误按输入下标返回；单个任务失败不影响其他任务。
// 不要在同一个池的任务内部再调用 Map，池满时会死锁。
func Map[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, []error) {
	results := make([]T, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		idx := i
		err := p.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[idx] = fmt.Errorf("task %d panicked: %v", idx, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = fn(ctx, idx)
		})
		if err != nil {
			wg.Done()
			errs[idx] = err
		}
	}
	wg.Wait()

	return results, errs
}
