package main

import "lease-sync/cmd"

func main() {
	cmd.Execute()
}
