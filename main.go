package main

import "github.com/insightdelivered/statement-reconciler/internal/cli"

func main() {
	cli.Execute()
}
