// Command quill-host loads guest plugins and drives them through the
// registration and stage lifecycle.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
