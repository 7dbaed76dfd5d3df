package main

import "dedup/internal/cli"

func main() {
	cli.Execute()
}
