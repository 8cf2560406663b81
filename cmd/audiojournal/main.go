package main

import "github.com/forPelevin/audiojournal/internal/cli"

func main() {
	cli.Main()
}
