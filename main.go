package main

import "book-circulation/cmd"

func main() {
	cmd.Execute()
}
