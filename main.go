package main

import "github.com/SERDSDDAM/SurpadClone/cmd"

func main() {
	cmd.Execute()
}
