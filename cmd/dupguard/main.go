package main

import "dupguard/internal/cli"

func main() {
	cli.Execute()
}
