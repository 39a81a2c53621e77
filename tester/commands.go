// Tester commands

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AgustinSRG/channel-token-issuer/accesstoken"
	"github.com/AgustinSRG/channel-token-issuer/client"
	"github.com/AgustinSRG/glog"
)

// Timeout for requests to the issuer
const REQUEST_TIMEOUT = 10 * time.Second

// Prints issued tokens
func printTokens(tokens *client.Tokens) {
	fmt.Printf("Channel: %v\n", tokens.ChannelName)
	fmt.Printf("Uid: %v\n", tokens.Uid)
	fmt.Printf("Role: %v\n", tokens.Role)
	fmt.Printf("App ID: %v\n", tokens.AppId)
	fmt.Printf("Expire: %v (%v)\n", tokens.ExpireTime, time.Unix(int64(tokens.ExpireTime), 0).UTC().Format(time.RFC3339))
	fmt.Printf("RTC token: %v\n", tokens.RtcToken)
	fmt.Printf("RTM token: %v\n", tokens.RtmToken)
}

// Requests tokens to the issuer
func runIssue(args *TesterArguments, logger *glog.Logger) {
	if args.Channel == "" {
		fmt.Println("Please, provide the channel name with the --channel option")
		return
	}

	c := client.NewTokenIssuerClient(client.TokenIssuerClientConfiguration{
		ServerUrl:      args.Url,
		AuthSecret:     args.Secret,
		RequestTimeout: REQUEST_TIMEOUT,
	})

	req := client.TokenRequest{
		ChannelName: args.Channel,
		Uid:         args.Uid,
		UserRole:    args.Role,
		ExpireTime:  args.Expire,
	}

	ctx, cancel := context.WithTimeout(context.Background(), REQUEST_TIMEOUT)
	defer cancel()

	var tokens *client.Tokens
	var err error

	if args.Websocket {
		logger.Debugf("Connecting to %v", args.Url)

		session, err := c.Dial(ctx)

		if err != nil {
			logger.Errorf("Could not connect: %v", err)
			return
		}

		defer session.Close()

		tokens, err = session.Issue(ctx, req)

		if err != nil {
			logger.Errorf("Could not issue tokens: %v", err)
			return
		}
	} else {
		logger.Debugf("Requesting tokens to %v", args.Url)

		tokens, err = c.IssueTokens(ctx, req)

		if err != nil {
			logger.Errorf("Could not issue tokens: %v", err)
			return
		}
	}

	printTokens(tokens)
}

// Checks if a role is in the comma separated list of publisher roles.
// Same matching as the issuer: case insensitive, surrounding spaces ignored.
func isPublisherRole(role string, publisherRoles string) bool {
	role = strings.TrimSpace(role)

	if role == "" {
		return false
	}

	for _, r := range strings.Split(publisherRoles, ",") {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}

	return false
}

// Builds tokens offline
func runBuild(args *TesterArguments, logger *glog.Logger) {
	if args.AppId == "" || args.AppCertificate == "" {
		fmt.Println("Please, provide the app credentials with --app-id and --app-certificate (or APP_ID and APP_CERTIFICATE)")
		return
	}

	if args.Channel == "" {
		fmt.Println("Please, provide the channel name with the --channel option")
		return
	}

	now := time.Now()

	expire := args.Expire

	if expire == 0 {
		expire = uint32(now.Unix()) + args.ValiditySeconds
	}

	rtc := accesstoken.NewServiceRtc(args.Channel, args.Uid)

	publisher := isPublisherRole(args.Role, args.PublisherRoles)

	role := "subscriber"

	if publisher {
		role = "publisher"
		logger.Debugf("Role %v gets the publish privileges", args.Role)
	}

	for _, code := range accesstoken.RtcPrivileges(publisher) {
		rtc.AddPrivilege(code, expire)
	}

	rtm := accesstoken.NewServiceRtm(accesstoken.UidToString(args.Uid))

	rtm.AddPrivilege(accesstoken.PrivilegeLogin, expire)

	tokens := &client.Tokens{
		ChannelName: args.Channel,
		Uid:         args.Uid,
		AppId:       args.AppId,
		ExpireTime:  expire,
		Role:        role,
	}

	for _, service := range []accesstoken.Service{rtc, rtm} {
		token := accesstoken.NewAccessTokenAt(args.AppId, args.AppCertificate, expire, now)

		token.AddService(service)

		result, err := token.Build()

		if err != nil {
			logger.Errorf("Could not build token: %v", err)
			return
		}

		if service.Type() == accesstoken.ServiceTypeRtc {
			tokens.RtcToken = result
		} else {
			tokens.RtmToken = result
		}
	}

	printTokens(tokens)
}

// Decodes a token
func runDecode(args *TesterArguments, logger *glog.Logger) {
	if args.Token == "" {
		fmt.Println("Please, provide the token with the --token option")
		return
	}

	token, err := accesstoken.Parse(args.Token)

	if err != nil {
		logger.Errorf("Could not decode token: %v", err)
		return
	}

	fmt.Printf("App ID: %v\n", token.AppId)
	fmt.Printf("Issued: %v\n", time.Unix(int64(token.IssueTs), 0).UTC().Format(time.RFC3339))
	fmt.Printf("Expire: %v\n", time.Unix(int64(token.Expire), 0).UTC().Format(time.RFC3339))
	fmt.Printf("Salt: %v\n", token.Salt)

	for _, service := range token.Services() {
		switch s := service.(type) {
		case *accesstoken.ServiceRtc:
			fmt.Printf("Service RTC. Channel: %q, Uid: %q\n", s.ChannelName, s.Uid)
		case *accesstoken.ServiceRtm:
			fmt.Printf("Service RTM. User ID: %q\n", s.UserId)
		}

		privileges := service.Privileges()

		for _, code := range privileges.Codes() {
			fmt.Printf("  Privilege %v expires at %v\n", code, time.Unix(int64(privileges[code]), 0).UTC().Format(time.RFC3339))
		}
	}

	if args.AppCertificate != "" {
		if token.VerifySignature(args.AppCertificate) {
			fmt.Println("Signature: valid")
		} else {
			fmt.Println("Signature: INVALID")
		}
	}
}
