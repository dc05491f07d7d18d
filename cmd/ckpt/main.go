package main

import "github.com/ckpt-project/ckpt/internal/cli"

func main() {
	cli.Execute()
}
