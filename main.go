package main

import "github.com/deckhandhq/deckhand/cmd/deckhand"

func main() {
	deckhand.Execute()
}
