package main

import "bulkload/cmd"

func main() {
	cmd.Execute()
}
