package main

import "volumeSpikeBot/cmd"

func main() {
	cmd.Execute()
}
