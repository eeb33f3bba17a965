// Command cryptosvc drives the cryptographic core service locally: key
// lifecycle management, symmetric/asymmetric encryption, digital
// signatures, and streaming file envelope encryption.
package main

import "southwinds.dev/cryptosvc/cli/cmd"

func main() {
	cmd.Execute()
}
