/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command scanner runs one scanning station. It reads decoded QR payloads,
// one per line, from stdin and prints the verdict for each submitted scan.
//
// Lines starting with ':' are operator commands: :clear, :stats, :history
// and :quit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/ledger"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/scan"
)

const historyShown = 10

func main() {
	flags := pflag.NewFlagSet("scanner", pflag.ExitOnError)
	config.ScannerFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadScanner(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.Logger = log.New(os.Stderr, "[scanner "+cfg.StationID+"] ", log.LstdFlags)

	client, err := scan.NewClient(cfg)
	if err != nil {
		log.Fatalf("failed to create authority client: %v", err)
	}

	var l scan.Ledger
	if cfg.LedgerPath != "" {
		fl, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			// Scanning continues without a ledger.
			cfg.Logger.Printf("failed to open ledger: %v", err)
		} else {
			l = fl
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := scan.NewSession(client, l, cfg)
	run(ctx, session, client, os.Stdin, os.Stdout)
}

func run(ctx context.Context, session *scan.Session, client *scan.Client, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case ":quit":
			return
		case ":clear":
			if err := session.Clear(); err != nil {
				fmt.Fprintf(out, "clear failed: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "local cache and ledger cleared")
		case ":stats":
			counts, err := client.Stats(ctx)
			if err != nil {
				fmt.Fprintf(out, "SERVER ERROR: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "total %d, used %d, remaining %d\n", counts.Total, counts.Used, counts.Remaining)
		case ":history":
			for _, rec := range session.History(historyShown) {
				fmt.Fprintf(out, "%s  %s  %s\n", rec.Timestamp.Format("15:04:05"), rec.TokenID, rec.Outcome)
			}
		default:
			res, ok := session.Process(ctx, line)
			if !ok {
				continue
			}
			printResult(out, res)
		}
	}
}

func printResult(out io.Writer, res scan.Result) {
	banner := res.Record.Outcome.Banner()
	switch {
	case res.Remaining != nil:
		fmt.Fprintf(out, "%s  %s  (%d remaining)\n", banner, res.Record.TokenID, *res.Remaining)
	case res.Err != nil:
		fmt.Fprintf(out, "%s  %s  (%v)\n", banner, res.Record.TokenID, res.Err)
	case res.Source == scan.SourceLocal:
		fmt.Fprintf(out, "%s  %s  (this station)\n", banner, res.Record.TokenID)
	default:
		fmt.Fprintf(out, "%s  %s\n", banner, res.Record.TokenID)
	}
}
