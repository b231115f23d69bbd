package main

import "github.com/orgmirror/orgmirror/cmd"

func main() {
	cmd.Execute()
}
