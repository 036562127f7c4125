package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	p, err := NewPool("test", FingerprintPool, DefaultConfig())
	if err != nil {
		t.Fatalf("创建池失败: %v", err)
	}
	defer p.Release()

	if p.Name() != "test" || p.Type() != FingerprintPool {
		t.Errorf("池名称或类型不匹配: %s %s", p.Name(), p.Type())
	}
	if p.Cap() != 10 {
		t.Errorf("池容量不匹配: 期望 10, 实际 %d", p.Cap())
	}

	if _, err := NewPool("bad", BackgroundPool, &Config{Capacity: 0}); !errors.Is(err, ErrInvalidPoolConfig) {
		t.Errorf("期望 ErrInvalidPoolConfig, 实际 %v", err)
	}
}

func TestPoolSubmit(t *testing.T) {
	p, err := NewPool("test", BackgroundPool, &Config{Capacity: 4, ExpiryDuration: time.Second})
	if err != nil {
		t.Fatalf("创建池失败: %v", err)
	}
	defer p.Release()

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}); err != nil {
			t.Errorf("提交任务失败: %v", err)
			wg.Done()
		}
	}
	wg.Wait()

	if counter.Load() != 50 {
		t.Errorf("任务执行数不匹配: 期望 50, 实际 %d", counter.Load())
	}
}

func TestPoolSubmitAfterRelease(t *testing.T) {
	p, err := NewPool("test", BackgroundPool, DefaultConfig())
	if err != nil {
		t.Fatalf("创建池失败: %v", err)
	}
	p.Release()
	p.Release()

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("期望 ErrPoolClosed, 实际 %v", err)
	}
}

func TestMapPreservesOrderAndBoundsConcurrency(t *testing.T) {
	p, err := NewPool("map", DimensionPool, &Config{Capacity: 3, ExpiryDuration: time.Second})
	if err != nil {
		t.Fatalf("创建池失败: %v", err)
	}
	defer p.Release()

	var running, peak atomic.Int32
	results, errs := Map(context.Background(), p, 12, func(_ context.Context, i int) (int, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		if i == 5 {
			return 0, errors.New("boom")
		}
		return i * i, nil
	})

	for i := range results {
		if i == 5 {
			if errs[i] == nil {
				t.Errorf("下标 5 期望错误")
			}
			continue
		}
		if errs[i] != nil || results[i] != i*i {
			t.Errorf("下标 %d 结果不匹配: %d %v", i, results[i], errs[i])
		}
	}
	if peak.Load() > 3 {
		t.Errorf("并发超出容量: %d", peak.Load())
	}
}

func TestMapCancelledContext(t *testing.T) {
	p, err := NewPool("map", RetrievalPool, DefaultConfig())
	if err != nil {
		t.Fatalf("创建池失败: %v", err)
	}
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, errs := Map(ctx, p, 3, func(context.Context, int) (string, error) { return "x", nil })
	for i, e := range errs {
		if !errors.Is(e, context.Canceled) {
			t.Errorf("下标 %d 期望 context.Canceled, 实际 %v", i, e)
		}
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	p, err := m.Register(FingerprintPool, DefaultConfig())
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if _, err := m.Register(FingerprintPool, DefaultConfig()); !errors.Is(err, ErrPoolAlreadyExists) {
		t.Errorf("期望 ErrPoolAlreadyExists, 实际 %v", err)
	}
	got, err := m.GetOrRegister(FingerprintPool, nil)
	if err != nil || got != p {
		t.Errorf("GetOrRegister 应返回已有池")
	}
	if _, err := m.Get(DimensionPool); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("期望 ErrPoolNotFound, 实际 %v", err)
	}

	m.ReleaseAll(time.Second)
	if _, err := m.Get(FingerprintPool); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("期望 ErrPoolClosed, 实际 %v", err)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  interface{ HTTPStatus() int }
		want int
	}{
		{ErrPoolOverload, 429},
		{ErrPoolClosed, 503},
		{ErrPoolNotFound, 500},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%v: 期望 %d, 实际 %d", tt.err, tt.want, got)
		}
	}
}
