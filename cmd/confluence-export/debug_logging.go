/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"fmt"
	"os"
)

func debugLog(format string, a ...any) {
	if Debug {
		fmt.Fprintf(os.Stderr, "[confluence-export] %s", fmt.Sprintf(format, a...))
	}
}
