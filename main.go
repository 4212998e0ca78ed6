// main is the entry point of the ktestci CLI.
package main

import (
	"github.com/ktestci/ktestci/cmd"
	"github.com/ktestci/ktestci/internal/contract"
)

func main() {
	if err := cmd.Execute(); err != nil {
		contract.LogFatal("ktestci", err)
	}
}
