package main

import "github.com/ramiqadoumi/planflow/services/api-gateway/cli"

func main() {
	cli.Execute()
}
