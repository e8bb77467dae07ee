package main

import "github.com/ponyo877/salachat/cli/cmd"

func main() {
	cmd.Execute()
}
