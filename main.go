package main

import "github.com/ubiportal/ubiportal/cmd"

func main() {
	cmd.Execute()
}
