package main

import "tableread/cmd/tableread/cmd"

func main() {
	cmd.Execute()
}
