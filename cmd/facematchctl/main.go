// Command facematchctl runs face matching operations against the configured
// database and provider without going through the HTTP API.
package main

func main() {
	Execute()
}
