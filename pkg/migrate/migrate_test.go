package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileName(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		wantErr bool
	}{
		{file: "0001_create_users.up.sql", version: "0001", name: "create_users", up: true},
		{file: "migrations/0001_create_users.down.sql", version: "0001", name: "create_users"},
		{file: "20240101_x.up.sql", version: "20240101", name: "x", up: true},
		{file: "create_users.up.sql", wantErr: true},
		{file: "v1_create_users.up.sql", wantErr: true},
		{file: "1a_x.down.sql", wantErr: true},
		{file: "0001_.up.sql", wantErr: true},
		{file: "0001_users.sql", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, err := parseFileName(tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.up, up)
		})
	}
}

func TestAssembleSortsNumerically(t *testing.T) {
	got, err := assemble(map[string]string{
		"10_c.up.sql":  "C",
		"2_b.up.sql":   "B",
		"2_b.down.sql": "-B",
		"1_a.up.sql":   "A",
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "10"}, []string{got[0].Version, got[1].Version, got[2].Version})
	assert.Equal(t, "-B", got[1].Down)
	assert.Equal(t, "2_b", got[1].ID())
}

func TestAssembleRejectsBrokenSets(t *testing.T) {
	_, err := assemble(map[string]string{"1_a.down.sql": "x"})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = assemble(map[string]string{"1_a.up.sql": "x", "1_b.up.sql": "y"})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestChecksumTracksUpScript(t *testing.T) {
	a := Migration{Version: "1", Name: "a", Up: "CREATE TABLE t (id INT)"}
	b := a
	b.Down = "DROP TABLE t"
	c := a
	c.Up += " "

	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, a.Checksum(), c.Checksum())
	assert.Len(t, a.Checksum(), 64)
}

func TestSplitStatements(t *testing.T) {
	script := `
-- create; the table
CREATE TABLE t (id INT, note TEXT);
INSERT INTO t VALUES (1, 'a;b');
INSERT INTO t VALUES (2, 'it\'s');
;
`
	got := SplitStatements(script)
	require.Len(t, got, 3)
	assert.Equal(t, "CREATE TABLE t (id INT, note TEXT)", got[0])
	assert.Equal(t, "INSERT INTO t VALUES (1, 'a;b')", got[1])
	assert.Equal(t, `INSERT INTO t VALUES (2, 'it\'s')`, got[2])

	assert.Empty(t, SplitStatements("  -- nothing\n"))
}
