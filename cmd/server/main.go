package main

import "Chorus/internal/bootstrap"

func main() {
	bootstrap.Run()
}
