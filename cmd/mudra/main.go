// Command mudra collects hand sign samples, trains the random forests that
// classify them and runs recognition over HTTP or a local camera.
package main

func main() {
	Execute()
}
