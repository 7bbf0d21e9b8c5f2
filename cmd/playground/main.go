// Command playground serves and maintains an iteration canvas.
package main

import "github.com/mesh-intelligence/playground/internal/cli"

func main() {
	cli.Execute()
}
