package addhost

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
)

// NameLookup finds persisted node names matching a SQL LIKE pattern
type NameLookup interface {
	FindNamesLike(ctx context.Context, pattern string) ([]string, error)
}

const randomSuffixLen = 5

// NameAllocator generates unique node names from hardware profile name formats
type NameAllocator struct {
	nodes        NameLookup
	reservations *reservation.Store
	logger       *slog.Logger

	// suffix returns the random part appended to randomized names
	suffix func() string
}

// NewNameAllocator creates a name allocator sharing the process-wide reservation store
func NewNameAllocator(nodes NameLookup, reservations *reservation.Store, logger *slog.Logger) *NameAllocator {
	return &NameAllocator{
		nodes:        nodes,
		reservations: reservations,
		logger:       logger,
		suffix:       randomSuffix,
	}
}

// randomSuffix returns five distinct random lowercase letters
func randomSuffix() string {
	perm := rand.Perm(26)
	b := make([]byte, randomSuffixLen)
	for i := range b {
		b[i] = byte('a' + perm[i])
	}
	return string(b)
}

// GenerateNodeName returns the lowest numbered name for nameFormat that is
// neither persisted nor reserved by an in-flight node, and reserves it.
//
// nameFormat may contain one "#R" run, replaced by the zero padded rack
// number, and one "#N" run, replaced by the node slot. With randomize set a
// dash and five random letters are appended to the chosen name. The returned
// name carries dnsSuffix when it is not empty; the reservation never does.
func (a *NameAllocator) GenerateNodeName(ctx context.Context, nameFormat string, rack *int, randomize bool, dnsSuffix string) (string, error) {
	baseName := nameFormat
	if strings.Contains(nameFormat, "#R") {
		if rack == nil {
			return "", fmt.Errorf("%w: rack number required (format=[%s])", ErrInvalidArgument, nameFormat)
		}
		var err error
		if baseName, err = substituteHashSpecifier(nameFormat, 'R', *rack); err != nil {
			return "", fmt.Errorf("%w (format=[%s])", err, nameFormat)
		}
	}

	pattern := wildcardHashSpecifier(baseName, 'N')
	if randomize {
		pattern += "-" + strings.Repeat("_", randomSuffixLen)
	}

	var hostname string
	err := a.reservations.Do(func(tx reservation.Txn) error {
		persisted, err := a.nodes.FindNamesLike(ctx, pattern)
		if err != nil {
			return fmt.Errorf("failed to look up node names like %q: %w", pattern, err)
		}

		used := make(map[string]struct{}, len(persisted))
		for _, name := range persisted {
			name = HostName(name)
			if randomize {
				name = stripRandomSuffix(name)
			}
			used[name] = struct{}{}
		}
		for _, name := range tx.Names() {
			if randomize {
				name = stripRandomSuffix(name)
			}
			used[name] = struct{}{}
		}

		name, err := firstFreeName(baseName, used)
		if err != nil {
			return fmt.Errorf("%w (format=[%s])", err, nameFormat)
		}
		if randomize {
			name += "-" + a.suffix()
		}

		tx.AddName(name)
		hostname = name
		return nil
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug("Generated node name", "name", hostname, "format", nameFormat)

	if dnsSuffix != "" {
		return hostname + "." + dnsSuffix, nil
	}
	return hostname, nil
}

// firstFreeName scans node slots from 1 upwards
func firstFreeName(baseName string, used map[string]struct{}) (string, error) {
	if !strings.Contains(baseName, "#N") {
		if _, taken := used[baseName]; taken {
			return "", ErrNameSpaceExhausted
		}
		return baseName, nil
	}

	for slot := 1; ; slot++ {
		name, err := substituteHashSpecifier(baseName, 'N', slot)
		if err != nil {
			return "", ErrNameSpaceExhausted
		}
		if _, taken := used[name]; !taken {
			return name, nil
		}
	}
}

// hashRun locates the "#X" run for spec in s, returning the index of '#' and
// the number of spec characters following it.
func hashRun(s string, spec byte) (int, int) {
	idx := strings.Index(s, "#"+string(spec))
	if idx < 0 {
		return -1, 0
	}
	end := idx + 1
	for end+1 < len(s) && s[end+1] == spec {
		end++
	}
	return idx, end - idx
}

// substituteHashSpecifier replaces the "#X" run with value zero padded to
// the run width
func substituteHashSpecifier(s string, spec byte, value int) (string, error) {
	idx, width := hashRun(s, spec)
	if idx < 0 {
		return s, nil
	}
	if value < 0 {
		return "", fmt.Errorf("%w: negative value %d for #%c", ErrInvalidArgument, value, spec)
	}

	limit := 1
	for i := 0; i < width; i++ {
		limit *= 10
	}
	if value > limit-1 {
		return "", fmt.Errorf("%w: value %d does not fit #%s", ErrNameSpaceExhausted, value, strings.Repeat(string(spec), width))
	}

	return fmt.Sprintf("%s%0*d%s", s[:idx], width, value, s[idx+1+width:]), nil
}

// wildcardHashSpecifier replaces the "#X" run with one '_' per character
func wildcardHashSpecifier(s string, spec byte) string {
	idx, width := hashRun(s, spec)
	if idx < 0 {
		return s
	}
	return s[:idx] + strings.Repeat("_", width) + s[idx+1+width:]
}

// HostName returns the host part of a possibly fully qualified name
func HostName(name string) string {
	host, _, _ := strings.Cut(name, ".")
	return host
}

// stripRandomSuffix removes a trailing "-xxxxx" lowercase suffix
func stripRandomSuffix(name string) string {
	n := len(name) - randomSuffixLen - 1
	if n < 0 || name[n] != '-' {
		return name
	}
	for _, c := range name[n+1:] {
		if c < 'a' || c > 'z' {
			return name
		}
	}
	return name[:n]
}
