// Arguments

package main

import (
	"fmt"
	"os"

	"github.com/AgustinSRG/genv"
	"github.com/spf13/pflag"
)

// Tester arguments
type TesterArguments struct {
	// Command
	Command string

	// Auth secret
	Secret string

	// Issuer URL
	Url string

	// Channel name
	Channel string

	// User ID
	Uid uint32

	// User role
	Role string

	// Publisher roles (comma separated), for offline built tokens
	PublisherRoles string

	// Custom expiration (Unix seconds)
	Expire uint32

	// Validity, in seconds, when no expiration is set
	ValiditySeconds uint32

	// App ID
	AppId string

	// App certificate
	AppCertificate string

	// Token to decode
	Token string

	// True to use the websocket endpoint
	Websocket bool

	// Debug mode
	Debug bool
}

// Creates the flag set for the tester
func newFlagSet(result *TesterArguments) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("tester", pflag.ContinueOnError)

	flagSet.StringVarP(&result.Secret, "secret", "s", genv.GetEnvString("ISSUE_AUTH_SECRET", ""), "Secret to sign authentication tokens")
	flagSet.StringVarP(&result.Url, "url", "u", genv.GetEnvString("ISSUER_URL", "http://localhost"), "URL of the token issuer")
	flagSet.StringVarP(&result.Channel, "channel", "c", "", "Channel name")
	flagSet.Uint32VarP(&result.Uid, "uid", "i", 0, "User ID")
	flagSet.StringVarP(&result.Role, "role", "r", "", "User role")
	flagSet.StringVar(&result.PublisherRoles, "publisher-roles", genv.GetEnvString("PUBLISHER_ROLES", "tutor"), "Comma separated roles that get the publish privileges")
	flagSet.Uint32VarP(&result.Expire, "expire", "e", 0, "Expiration (Unix seconds)")
	flagSet.Uint32Var(&result.ValiditySeconds, "validity", 3600, "Validity (seconds) of offline built tokens")
	flagSet.StringVar(&result.AppId, "app-id", genv.GetEnvString("APP_ID", ""), "App ID")
	flagSet.StringVar(&result.AppCertificate, "app-certificate", genv.GetEnvString("APP_CERTIFICATE", ""), "App certificate")
	flagSet.StringVarP(&result.Token, "token", "t", "", "Token to decode")
	flagSet.BoolVarP(&result.Websocket, "websocket", "w", false, "Request the tokens through the websocket endpoint")
	flagSet.BoolVarP(&result.Debug, "debug", "d", false, "Enables debug and trace messages")

	return flagSet
}

func LoadArguments() (bool, *TesterArguments) {
	result := TesterArguments{}
	args := os.Args

	if len(args) < 2 {
		fmt.Printf("Usage: tester <COMMAND> [OPTIONS]\n")
		fmt.Printf("Type tester --help for help\n")
		return false, nil
	}

	result.Command = args[1]

	flagSet := newFlagSet(&result)

	err := flagSet.Parse(args[2:])

	if err != nil {
		if err != pflag.ErrHelp {
			fmt.Println(err.Error())
			fmt.Printf("Type %v --help for help\n", args[0])
		}

		return false, nil
	}

	if flagSet.NArg() > 0 {
		fmt.Printf("Unrecognized argument: %v\n", flagSet.Arg(0))
		fmt.Printf("Type %v --help for help\n", args[0])
		return false, nil
	}

	return true, &result
}
