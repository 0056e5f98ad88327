package main

import "symphonia/internal/cli"

func main() {
	cli.Execute()
}
