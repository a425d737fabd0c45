package main

import "github.com/meziane/drclone/cmd"

func main() {
	cmd.Execute()
}
