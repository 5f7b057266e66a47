// Command sondectl parses dropsonde reports locally and ingests reports or
// archives into the configured catalog without going through the API.
package main

func main() {
	Execute()
}
