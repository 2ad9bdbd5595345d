package main

import "thoreinstein.com/shipwright/cmd"

func main() {
	cmd.Execute()
}
