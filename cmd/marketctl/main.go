// Command marketctl operates the marketplace from the shell: wallets, test
// assets, registries, listings and purchases, plus a live event tail.
package main

import (
	"fmt"
	"os"
)

func main() {
	env := &cliEnv{out: os.Stdout}
	err := newApp(env).Run(os.Args)
	env.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "marketctl:", err)
		os.Exit(1)
	}
}
