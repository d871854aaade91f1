package main

import "ProcGraph/pkg/cmd"

func main() {
	cmd.Execute()
}
