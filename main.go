package main

import "github.com/timvw/panetone/cmd"

func main() {
	cmd.Execute()
}
