package main

import "github.com/example/wodify-ap/cmd"

func main() {
	cmd.Execute()
}
