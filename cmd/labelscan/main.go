package main

import "github.com/shoplens/labelscan/cmd/labelscan/cmd"

func main() {
	cmd.Execute()
}
