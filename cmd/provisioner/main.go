// Package main is the entry point for the voice-assistant provisioner.
//
// The provisioner prepares a machine to run the voice assistant: it builds the
// Python environment, starts the Ollama model service and pulls the model,
// and can expose the same operations over a small HTTP API.
package main

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
