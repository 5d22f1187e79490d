package main

import "github.com/halvorsen/speedd/internal/world"

// initWorld constructs the single shared World instance for the process.
// There is exactly one per server: every session registers and reports
// against it.
func initWorld() *world.World {
	return world.New()
}
