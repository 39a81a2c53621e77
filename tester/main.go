// Main

package main

import (
	"fmt"
	"strings"

	"github.com/AgustinSRG/glog"
	"github.com/joho/godotenv"
)

// Main
func main() {
	_ = godotenv.Load() // Load env vars

	ok, args := LoadArguments()

	if !ok {
		return
	}

	// Configure logs
	logger := glog.CreateRootLogger(glog.LoggerConfiguration{
		ErrorEnabled:   true,
		WarningEnabled: true,
		InfoEnabled:    true,
		DebugEnabled:   args.Debug,
		TraceEnabled:   args.Debug,
	}, glog.StandardLogFunction)

	switch strings.ToLower(args.Command) {
	case "issue", "request":
		runIssue(args, logger)
	case "build":
		runBuild(args, logger)
	case "decode", "inspect":
		runDecode(args, logger)
	case "?", "help", "-h", "-help", "--help":
		printHelp()
	default:
		fmt.Printf("Unrecognized command: %v\n\n", args.Command)
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: tester <COMMAND> [OPTIONS]")
	fmt.Println("Commands:")
	fmt.Println("  issue     Requests a pair of tokens to the issuer")
	fmt.Println("  build     Builds a pair of tokens offline, with the app credentials")
	fmt.Println("  decode    Decodes a token and prints its content")
	fmt.Println("Options:")
	fmt.Println(newFlagSet(&TesterArguments{}).FlagUsages())
}
