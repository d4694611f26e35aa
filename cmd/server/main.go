package main

import "wfm/internal/app/server"

func main() {
	server.Run()
}
