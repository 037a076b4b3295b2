// Command remotekeys runs the remote keyboard host and its helper commands.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
