package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/session"
)

const testDefinitions = `
entities:
  - name: User
    attributes:
      - {name: id, type: integer, primaryKey: true}
      - {name: name, type: string}
  - name: Order
    attributes:
      - {name: id, type: integer, primaryKey: true}
      - {name: amount, type: integer}
associations:
  - {kind: hasMany, source: User, target: Order}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseRequest(t *testing.T) {
	req, err := parseRequest([]byte(`
where:
  and:
    - {name: ada}
    - {id: {gt: 1}}
attributes: [id, name]
include:
  - as: orders
    required: true
    where: {amount: {gte: 100}}
order: [-id, name]
limit: 5
offset: 10
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, req.Attributes)
	assert.Equal(t, []query.Order{query.Desc("id"), query.Asc("name")}, req.Order)
	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, 10, req.Offset)
	require.Len(t, req.Include, 1)
	assert.Equal(t, "orders", req.Include[0].As)
	assert.True(t, req.Include[0].Required)
	assert.Contains(t, req.Where, "and")

	_, err = parseRequest([]byte("limit: [1"))
	assert.Error(t, err)
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "entities.yaml", testDefinitions)
	req := writeFile(t, dir, "request.yaml", "where: {id: 1}\ninclude: [{as: orders}]\n")

	out, err := run(t, "compile", "-d", defs, "--entity", "User", req)
	require.NoError(t, err)
	assert.Contains(t, out, "-- sql")
	assert.Contains(t, out, "LEFT OUTER JOIN `order` AS `orders`")
	assert.Contains(t, out, "@param0 = 1")

	out, err = run(t, "compile", "-d", defs, "--entity", "Order", "--aggregate", "sum", "--field", "amount", "--dataset", "ds")
	require.NoError(t, err)
	assert.Contains(t, out, "SUM(`order`.`amount`) AS `sum`")
	assert.Contains(t, out, "`ds.order`")

	_, err = run(t, "compile", "-d", defs, req)
	assert.EqualError(t, err, "--entity is required")
}

func TestSyncAndRun(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "entities.yaml", testDefinitions)
	dsn := filepath.Join(dir, "local.db")

	out, err := run(t, "sync", "-d", defs, "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "synced  user")
	assert.Contains(t, out, "synced  order")

	out, err = run(t, "compile", "-d", defs, "--dsn", dsn, "--entity", "User", "--run", "--count")
	require.NoError(t, err)
	assert.Contains(t, out, "count: 0")

	out, err = run(t, "sync", "-d", defs, "--dsn", dsn, "--drop")
	require.NoError(t, err)
	assert.Contains(t, out, "dropped user")
}

func TestMigrateCommands(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrations, 0o755))
	writeFile(t, migrations, "001_events.up.sql", "CREATE TABLE events (id INTEGER);")
	writeFile(t, migrations, "001_events.down.sql", "DROP TABLE events;")
	writeFile(t, migrations, "002_sessions.up.sql", "CREATE TABLE sessions (id INTEGER);")
	writeFile(t, migrations, "002_sessions.down.sql", "DROP TABLE sessions;")
	t.Setenv(session.EnvMigrationsDir, migrations)
	dsn := filepath.Join(dir, "local.db")

	out, err := run(t, "migrate", "status", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "pending  001_events")

	out, err = run(t, "migrate", "up", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 001_events")
	assert.Contains(t, out, "applied 002_sessions")

	out, err = run(t, "migrate", "up", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")

	out, err = run(t, "migrate", "down", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "reverted 002_sessions")

	out, err = run(t, "migrate", "status", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "applied  001_events")
	assert.Contains(t, out, "pending  002_sessions")
}
