package main

import "github.com/complyport/screening-relay/cmd"

func main() {
	cmd.Execute()
}
