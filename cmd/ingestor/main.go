// Package main is the entry point for the data agent ingestor.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/dataagent/cmd/ingestor/app"
)

func main() {
	app.NewApp().Run()
}
