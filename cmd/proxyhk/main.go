package main

import "github.com/dbsmedya/proxyhk/cmd/proxyhk/cmd"

func main() {
	cmd.Execute()
}
