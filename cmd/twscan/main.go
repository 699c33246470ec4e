package main

import "twscan/internal/cli"

func main() {
	cli.Execute()
}
