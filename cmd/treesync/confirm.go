package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmRun prints a one-line summary of the plan and waits for the user to
// type "Y" (or accept the default by pressing Enter) before proceeding.
// Anything else is treated as a decline.
func confirmRun(summary string) (bool, error) {
	fmt.Printf("%s\nProceed? [Y/n] ", summary)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	line = strings.TrimSpace(strings.ToLower(line))

	return line == "" || line == "y" || line == "yes", nil
}
