package main

import "github.com/ramiqadoumi/planflow/services/runner/cli"

func main() {
	cli.Execute()
}
