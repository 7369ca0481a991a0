// Package main provides the entry point for the newtab service and CLI.
package main

import (
	"github.com/illmade-knight/go-newtab/internal/cli"
)

func main() {
	cli.Execute()
}
