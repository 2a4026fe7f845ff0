package main

import "github.com/oshokin/parking-monitor/cmd/parking-monitor/cmd"

func main() {
	cmd.Execute()
}
