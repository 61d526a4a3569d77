// Package main is the entry point for the relocator CLI.
package main

import "github.com/mouse-blink/relocator/cmd"

func main() {
	cmd.Execute()
}
