// Command hubctl sends activity, audio and device commands to a hub, and
// runs as a daemon exposing the command queue over HTTP.
package main

func main() {
	Execute()
}
