// Package main provides the entry point for the fincache CLI.
package main

import (
	"github.com/finboard/fincache/internal/cli"
)

func main() {
	cli.Execute()
}
