package main

import "github.com/ramiqadoumi/planflow/services/resumer/cli"

func main() {
	cli.Execute()
}
