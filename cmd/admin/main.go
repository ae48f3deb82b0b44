// Operator CLI for a running server: user management, trace inspection,
// pipeline control over the REST API, plus direct sqlite queries for offline
// debugging.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "users":
			usersCmd(os.Args[2:])
			return
		case "traces":
			tracesCmd(os.Args[2:])
			return
		case "pipeline":
			pipelineCmd(os.Args[2:])
			return
		case "sessions":
			sessionsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "-h", "--help", "help":
			usage()
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  users     list|create|update|delete dashboard users (REST)
  traces    list|stats AI call traces (REST)
  pipeline  etl|fill|batch control and status (REST)
  sessions  list running sessions (loopback admin endpoint)
  snapshot  force a session snapshot (loopback admin endpoint)
  db        query the sqlite read model directly`)
}
