// Command politerm relays a task between a PLANNER and an EXECUTER coding
// agent running in terminal sessions.
package main

import "os"

func main() {
	cmd, args := resolveCommand(os.Args[1:], defaultCommandDeps())
	os.Exit(cmd.Run(args))
}
