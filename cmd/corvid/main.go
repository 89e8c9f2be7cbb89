// Copyright 2022 The codesjoy Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command corvid is a thin command-line front end for the corvidd daemon. It
// stands in for the IDE's native UI: every subcommand auto-starts the
// daemon if needed, issues one request over the frame transport, and prints
// the result. It exists so the client transport and auto-start supervisor
// are exercised by something besides tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/corvid-ide/corvid/autostart"
	"github.com/corvid-ide/corvid/config"
	"github.com/corvid-ide/corvid/wire"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("corvid", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a corvid.toml settings file")
	timeout := fs.Duration("timeout", 10*time.Second, "per-request deadline")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: corvid [-config path] <ping|open|close|search|stats> ...")
		return 2
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corvid: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+time.Duration(settings.ConnectionTimeoutMillis)*time.Millisecond)
	defer cancel()

	sup := autostart.New(settings)
	cli, err := sup.Connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corvid: connect: %v\n", err)
		return 1
	}
	defer cli.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), *timeout)
	defer callCancel()

	cmd, cmdArgs := rest[0], rest[1:]
	var payload wire.Payload
	switch cmd {
	case "ping":
		payload = wire.Ping{}
	case "open":
		if len(cmdArgs) != 1 {
			fmt.Fprintln(os.Stderr, "usage: corvid open <path>")
			return 2
		}
		payload = wire.OpenBuffer{Path: cmdArgs[0]}
	case "close":
		id, err := parseUint(cmdArgs, 0, "corvid close <id>")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		payload = wire.CloseBuffer{ID: id}
	case "search":
		if len(cmdArgs) != 2 {
			fmt.Fprintln(os.Stderr, "usage: corvid search <root> <pattern>")
			return 2
		}
		payload = wire.Search{Root: cmdArgs[0], Pattern: cmdArgs[1], MaxResults: 100}
	case "stats":
		payload = wire.GetStats{}
	default:
		fmt.Fprintf(os.Stderr, "corvid: unknown command %q\n", cmd)
		return 2
	}

	resp, err := cli.Call(callCtx, payload, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corvid: %v\n", err)
		return 1
	}
	fmt.Printf("%+v\n", resp)
	return 0
}

func parseUint(args []string, i int, usage string) (uint64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf(usage)
	}
	var v uint64
	if _, err := fmt.Sscanf(args[i], "%d", &v); err != nil {
		return 0, fmt.Errorf(usage)
	}
	return v, nil
}
