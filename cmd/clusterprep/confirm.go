package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirm asks question on out and reads a y/N answer from in. Anything
// but "y" or "yes", including no answer, declines.
func confirm(in io.Reader, out io.Writer, question string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", question)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
