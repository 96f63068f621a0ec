// Command promptloop refines prompts by alternating generation and
// evaluation, either in-process or as tasks executed by Temporal workers.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
