package main

import "github.com/OpenTraceLab/kilibmerge/cmd/kilibmerge/cmd"

func main() {
	cmd.Execute()
}
