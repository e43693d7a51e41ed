package main

import (
	cmd "github.com/rohmanhakim/newscrawl/internal/cli"
)

func main() {
	cmd.Execute()
}
