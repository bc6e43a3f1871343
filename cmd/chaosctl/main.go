package main

import "github.com/mcoot/chaosroom/internal/cli"

func main() {
	cli.Execute()
}
