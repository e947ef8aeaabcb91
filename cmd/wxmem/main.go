package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(doMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(ctx context.Context, args []string, stdOut, stdErr io.Writer) int {
	cmd := newRootCmd(stdOut, stdErr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stdErr, "Error:", err)
		return 1
	}
	return 0
}
