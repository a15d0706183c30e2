package main

import "subscription-tracker/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
