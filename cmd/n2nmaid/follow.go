package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"n2nmaid"
	"n2nmaid/cmd/n2nmaid/ui"
)

const (
	followConsumer = "cli"
	followInterval = 250 * time.Millisecond
)

type statusSource interface {
	Status() n2nmaid.StatusReport
	Logs(consumer string) []n2nmaid.LogRecord
	Peers() []n2nmaid.PeerInfo
}

type followOptions struct {
	showPeers   bool
	exitOnError bool
	interval    time.Duration
}

// EdgeFailedError ends a foreground session whose edge reached the error
// status.
type EdgeFailedError struct {
	Reason string
}

func (e *EdgeFailedError) Error() string { return "edge failed: " + e.Reason }

// follow prints new log records, status changes and, optionally, peer
// table changes until ctx is done.
func follow(ctx context.Context, src statusSource, out io.Writer, opts followOptions) error {
	interval := opts.interval
	if interval <= 0 {
		interval = followInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last     n2nmaid.StatusReport
		havePrev bool
		peerKey  string
	)
	for {
		drain(src, out)

		rep := src.Status()
		if !havePrev || statusChanged(last, rep) {
			fmt.Fprintln(out, ui.StatusMsg(rep))
		}
		last, havePrev = rep, true

		if opts.showPeers {
			list := src.Peers()
			if key := peersKey(list); key != peerKey {
				peerKey = key
				if len(list) > 0 {
					fmt.Fprintln(out, ui.PeerTable(list))
				}
			}
		}

		if rep.Status == n2nmaid.StatusError && opts.exitOnError {
			return &EdgeFailedError{Reason: rep.Reason}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func drain(src statusSource, out io.Writer) {
	for _, rec := range src.Logs(followConsumer) {
		fmt.Fprintln(out, ui.LogLine(rec))
	}
}

func statusChanged(a, b n2nmaid.StatusReport) bool {
	return a.Status != b.Status ||
		a.Reason != b.Reason ||
		a.Session != b.Session ||
		(a.NetworkInfo == nil) != (b.NetworkInfo == nil)
}

// peersKey identifies the peer set; latency changes do not count.
func peersKey(list []n2nmaid.PeerInfo) string {
	var sb strings.Builder
	for _, p := range list {
		sb.WriteString(p.Name)
		sb.WriteByte('/')
		sb.WriteString(p.VPNIP)
		sb.WriteByte('/')
		sb.WriteString(p.Mode)
		sb.WriteByte(';')
	}
	return sb.String()
}
