package addhost

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGenerateNodeName_RackAndSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rack := 3

	name, err := f.server.Names().GenerateNodeName(ctx, "compute-#RR-#NNN", &rack, false, "")
	require.NoError(t, err)
	assert.Equal(t, "compute-03-001", name)

	name, err = f.server.Names().GenerateNodeName(ctx, "compute-#RR-#NNN", &rack, false, "")
	require.NoError(t, err)
	assert.Equal(t, "compute-03-002", name)

	assert.True(t, f.reservations.HasName("compute-03-001"))
	assert.True(t, f.reservations.HasName("compute-03-002"))
}

func TestGenerateNodeName_RackRequired(t *testing.T) {
	f := newFixture(t)

	_, err := f.server.Names().GenerateNodeName(context.Background(), "rack#R-#N", nil, false, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorContains(t, err, "format=[rack#R-#N]")
}

func TestGenerateNodeName_SkipsPersistedNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, _ := f.computeProfile(t)

	f.persistNode(t, hw, "compute-01")
	f.persistNode(t, hw, "compute-02.cluster.example")
	// Does not match the two digit slot pattern
	f.persistNode(t, hw, "compute-003")

	name, err := f.server.Names().GenerateNodeName(ctx, "compute-#NN", nil, false, "cluster.example")
	require.NoError(t, err)
	assert.Equal(t, "compute-03.cluster.example", name)

	// Reservations carry the host name only
	assert.True(t, f.reservations.HasName("compute-03"))
	assert.False(t, f.reservations.HasName("compute-03.cluster.example"))
}

func TestGenerateNodeName_Exhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reservations.Do(func(tx reservation.Txn) error {
		for i := 1; i <= 9; i++ {
			tx.AddName(fmt.Sprintf("node-%d", i))
		}
		return nil
	}))

	_, err := f.server.Names().GenerateNodeName(ctx, "node-#N", nil, false, "")
	assert.ErrorIs(t, err, ErrNameSpaceExhausted)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorContains(t, err, "format=[node-#N]")
}

func TestGenerateNodeName_FixedName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name, err := f.server.Names().GenerateNodeName(ctx, "login", nil, false, "")
	require.NoError(t, err)
	assert.Equal(t, "login", name)

	_, err = f.server.Names().GenerateNodeName(ctx, "login", nil, false, "")
	assert.ErrorIs(t, err, ErrNameSpaceExhausted)
}

func TestGenerateNodeName_Randomize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, _ := f.computeProfile(t)
	f.persistNode(t, hw, "compute-01-qwert")

	names := f.server.Names()
	names.suffix = func() string { return "abcde" }

	name, err := names.GenerateNodeName(ctx, "compute-#NN", nil, true, "")
	require.NoError(t, err)
	assert.Equal(t, "compute-02-abcde", name)

	name, err = names.GenerateNodeName(ctx, "compute-#NN", nil, true, "")
	require.NoError(t, err)
	assert.Equal(t, "compute-03-abcde", name)
}

func TestRandomSuffix(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]{5}$`)
	for i := 0; i < 20; i++ {
		s := randomSuffix()
		require.Regexp(t, pattern, s)

		seen := make(map[rune]bool)
		for _, c := range s {
			assert.False(t, seen[c], "letter %c repeated in %s", c, s)
			seen[c] = true
		}
	}
}

func TestGenerateNodeName_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 40
	var mu sync.Mutex
	seen := make(map[string]bool)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			name, err := f.server.Names().GenerateNodeName(ctx, "compute-#NNN", nil, false, "")
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[name] {
				return fmt.Errorf("duplicate name %s", name)
			}
			seen[name] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, workers)
	assert.True(t, seen["compute-001"])
	assert.True(t, seen[fmt.Sprintf("compute-%03d", workers)])

	// Every generated name stays pending until the batch is committed or cleared
	names, ips := f.reservations.Len()
	assert.Equal(t, workers, names)
	assert.Zero(t, ips)
	for name := range seen {
		assert.True(t, f.reservations.HasName(name), "name %s is not pending", name)
	}
}

func TestSubstituteHashSpecifier(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		spec    byte
		value   int
		want    string
		wantErr error
	}{
		{name: "single", format: "node#N", spec: 'N', value: 7, want: "node7"},
		{name: "padded", format: "node-#NNN", spec: 'N', value: 7, want: "node-007"},
		{name: "rack", format: "r#RR-n#N", spec: 'R', value: 4, want: "r04-n#N"},
		{name: "absent", format: "login", spec: 'N', value: 1, want: "login"},
		{name: "overflow", format: "n#NN", spec: 'N', value: 100, wantErr: ErrNameSpaceExhausted},
		{name: "negative", format: "r#R", spec: 'R', value: -1, wantErr: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := substituteHashSpecifier(tt.format, tt.spec, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWildcardHashSpecifier(t *testing.T) {
	assert.Equal(t, "compute-03-___", wildcardHashSpecifier("compute-03-#NNN", 'N'))
	assert.Equal(t, "login", wildcardHashSpecifier("login", 'N'))
}

func TestStripRandomSuffix(t *testing.T) {
	assert.Equal(t, "compute-01", stripRandomSuffix("compute-01-abcde"))
	assert.Equal(t, "compute-01", stripRandomSuffix("compute-01"))
	assert.Equal(t, "node-ABCDE", stripRandomSuffix("node-ABCDE"))
	assert.Equal(t, "gpu-12345", stripRandomSuffix("gpu-12345"))
}

func TestHostName(t *testing.T) {
	assert.Equal(t, "compute-01", HostName("compute-01.cluster.example"))
	assert.Equal(t, "compute-01", HostName("compute-01"))
}
