package main

import "github.com/wentf9/routerctl/cmd"

func main() {
	cmd.Execute()
}
