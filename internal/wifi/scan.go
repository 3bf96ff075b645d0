// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package wifi scans for access points and resolves them to positions.
package wifi

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/relabs-tech/locator/internal/location"
)

// IWScanner runs `iw dev <iface> scan`. Scanning usually needs CAP_NET_ADMIN.
type IWScanner struct {
	Interface string
	run       func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewIWScanner(iface string) *IWScanner {
	if iface == "" {
		iface = "wlan0"
	}
	return &IWScanner{Interface: iface, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Scan returns the visible access points, strongest first.
func (s *IWScanner) Scan(ctx context.Context) ([]location.AccessPoint, error) {
	out, err := s.run(ctx, "iw", "dev", s.Interface, "scan")
	if err != nil {
		return nil, fmt.Errorf("wifi: scan %s: %w", s.Interface, err)
	}
	return ParseScan(string(out)), nil
}

// ParseScan reads the output of `iw dev <iface> scan`.
func ParseScan(out string) []location.AccessPoint {
	var aps []location.AccessPoint
	var cur *location.AccessPoint

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "BSS ") {
			bssid := strings.TrimPrefix(line, "BSS ")
			if i := strings.IndexAny(bssid, "( "); i >= 0 {
				bssid = bssid[:i]
			}
			aps = append(aps, location.AccessPoint{BSSID: strings.ToLower(bssid)})
			cur = &aps[len(aps)-1]
			continue
		}
		if cur == nil {
			continue
		}

		field := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(field, "signal:"):
			v := strings.Fields(strings.TrimPrefix(field, "signal:"))
			if len(v) > 0 {
				if dbm, err := strconv.ParseFloat(v[0], 64); err == nil {
					cur.SignalDBm = int(dbm)
				}
			}
		case strings.HasPrefix(field, "SSID:"):
			cur.SSID = strings.TrimSpace(strings.TrimPrefix(field, "SSID:"))
		case strings.HasPrefix(field, "DS Parameter set: channel"):
			cur.Channel = atoiTail(field)
		case strings.HasPrefix(field, "* primary channel:"):
			if cur.Channel == 0 {
				cur.Channel = atoiTail(field)
			}
		}
	}

	sort.SliceStable(aps, func(i, j int) bool { return aps[i].SignalDBm > aps[j].SignalDBm })
	return aps
}

func atoiTail(s string) int {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(f[len(f)-1])
	return n
}
