package main

import "github.com/LENAX/async-actions/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
