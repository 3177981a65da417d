// Command epicbox runs untrusted code in ephemeral sandboxes from the
// shell: `epicbox run <profile> [command]`.
package main

import "github.com/sandboxrun/epicbox/cmd/epicbox/cli"

func main() {
	cli.Execute()
}
