package bootstrap

import (
	"fmt"
	"slices"
	"strings"
)

// ResolveDependencies 按依赖关系对初始化器做拓扑排序。
// 无依赖关系约束的初始化器保持注册顺序，因此结果是确定的。
// 名称重复、依赖缺失或存在循环时返回错误。
func ResolveDependencies(initializers []Initializer) ([]Initializer, error) {
	if len(initializers) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(initializers))
	for i, init := range initializers {
		if _, exists := index[init.Name()]; exists {
			return nil, fmt.Errorf("duplicate initializer name: %s", init.Name())
		}
		index[init.Name()] = i
	}

	// deps[i] 为 i 依赖的初始化器下标
	deps := make([][]int, len(initializers))
	for i, init := range initializers {
		for _, dep := range init.Dependencies() {
			j, exists := index[dep]
			if !exists {
				return nil, fmt.Errorf("initializer %q depends on %q which is not registered", init.Name(), dep)
			}
			deps[i] = append(deps[i], j)
		}
	}

	if cycle := findCycle(initializers, deps); cycle != nil {
		return nil, fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
	}

	// 每轮取注册顺序中第一个依赖已全部就绪的初始化器
	done := make([]bool, len(initializers))
	result := make([]Initializer, 0, len(initializers))
	for len(result) < len(initializers) {
		for i := range initializers {
			if done[i] || slices.ContainsFunc(deps[i], func(j int) bool { return !done[j] }) {
				continue
			}
			done[i] = true
			result = append(result, initializers[i])
			break
		}
	}
	return result, nil
}

// findCycle 三色 DFS，返回第一个发现的环路径（首尾相同），无环时返回 nil。
func findCycle(initializers []Initializer, deps [][]int) []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(initializers))
	var stack []int

	var visit func(i int) []string
	visit = func(i int) []string {
		color[i] = gray
		stack = append(stack, i)
		for _, j := range deps[i] {
			switch color[j] {
			case gray:
				start := slices.Index(stack, j)
				path := make([]string, 0, len(stack)-start+1)
				for _, k := range stack[start:] {
					path = append(path, initializers[k].Name())
				}
				return append(path, initializers[j].Name())
			case white:
				if cycle := visit(j); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return nil
	}

	for i := range initializers {
		if color[i] == white {
			if cycle := visit(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
