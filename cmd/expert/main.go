// Package main is the entry point for the data agent expert.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/dataagent/cmd/expert/app"
)

func main() {
	app.NewApp().Run()
}
