// Package main is the halctl command itself.
package main

import (
	"log"
	"os"

	"go.viam.com/hal/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr, nil)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
