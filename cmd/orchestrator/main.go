// Package main is the entry point for the data agent orchestrator.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/dataagent/cmd/orchestrator/app"
)

func main() {
	app.NewApp().Run()
}
