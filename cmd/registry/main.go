// Package main is the entry point for the data agent registry.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/dataagent/cmd/registry/app"
)

func main() {
	app.NewApp().Run()
}
