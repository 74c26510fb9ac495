// Package supervisor runs one Prometheus child process per session.
//
// A Supervisor moves through three states:
//
//	NotStarted --Start--> Running --exit or Stop--> Exited
//
// Exited is terminal; a new session needs a new Supervisor. Stop never
// blocks on the child: it signals the process group and returns. The
// child's stdout and stderr are forwarded line by line to the Logger at
// debug and warn level.
package supervisor
