package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
)

var leaseHardwarePattern = regexp.MustCompile(`^\s*hardware\s+ethernet\s+([0-9A-Fa-f:]{17})\s*;`)

// LeasesFile reads MAC addresses from an ISC dhcpd leases file
type LeasesFile struct {
	Path string
}

// MACs returns the MAC addresses found in the leases file, in file order and
// without duplicates. A missing file yields no addresses.
func (l LeasesFile) MACs(ctx context.Context) ([]string, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open leases file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var macs []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := leaseHardwarePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		macs = append(macs, m[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leases file: %w", err)
	}
	return macs, nil
}
