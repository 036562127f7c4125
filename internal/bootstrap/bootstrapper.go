package bootstrap

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Bootstrapper 按依赖顺序初始化组件，并在退出时逆序关闭。
//
//	b := bootstrap.New(logging, redis, llm)
//	if err := b.Initialize(ctx); err != nil {
//	    _ = b.Shutdown(ctx)
//	    return err
//	}
//	defer b.Shutdown(context.Background())
type Bootstrapper struct {
	initializers []Initializer
	started      []Initializer
}

// New 创建包含 inits 的 Bootstrapper。
func New(inits ...Initializer) *Bootstrapper {
	return &Bootstrapper{initializers: inits}
}

// Add 追加初始化器，须在 Initialize 之前调用。
func (b *Bootstrapper) Add(inits ...Initializer) {
	b.initializers = append(b.initializers, inits...)
}

// Initialize 解析依赖并依次初始化。失败时已初始化的组件仍由 Shutdown 释放。
func (b *Bootstrapper) Initialize(ctx context.Context) error {
	ordered, err := ResolveDependencies(b.initializers)
	if err != nil {
		return err
	}
	for _, init := range ordered {
		logger.Infof("Initializing %s...", init.Name())
		if err := init.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", init.Name(), err)
		}
		b.started = append(b.started, init)
	}
	return nil
}

// Shutdown 按初始化的相反顺序关闭组件，汇总所有错误。
func (b *Bootstrapper) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(b.started) - 1; i >= 0; i-- {
		s, ok := b.started[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			logger.Errorw("Error during shutdown", "component", b.started[i].Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.started[i].Name(), err))
		}
	}
	b.started = nil
	return utilerrors.NewAggregate(errs)
}
