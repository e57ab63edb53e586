package main

import "github.com/mediacut/highlightd/internal/cli"

func main() {
	cli.Main()
}
