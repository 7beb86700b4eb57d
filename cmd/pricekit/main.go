package main

import "github.com/klytics/pricekit/cmd"

func main() {
	cmd.Execute()
}
