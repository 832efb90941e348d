package main

import "github.com/subproc/gosh/cmd"

func main() {
	cmd.Execute()
}
