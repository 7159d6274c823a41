package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFilterCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewFilterCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func adultsArgs(extra ...string) []string {
	args := []string{
		filepath.Join(testdata, "schema"),
		"--model", "User",
		"--query", filepath.Join(testdata, "queries", "adults.yaml"),
	}
	return append(args, extra...)
}

func TestFilterInMemory(t *testing.T) {
	out, err := runFilterCommand(t, "text", adultsArgs("--records", filepath.Join(testdata, "records", "users.yaml"))...)
	require.NoError(t, err)
	assert.Equal(t,
		"id=4 name=Alice\n"+
			"id=1 name=\"Dan Kubb\"\n"+
			"id=2 name=Sam\n"+
			"3 record(s)\n",
		out)
}

func TestFilterSQLiteDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "blog.db")

	// The first run creates the tables and inserts the records.
	_, err := runFilterCommand(t, "text", adultsArgs(
		"--db", db,
		"--migrate",
		"--records", filepath.Join(testdata, "records", "users.yaml"),
	)...)
	require.NoError(t, err)

	out, err := runFilterCommand(t, "json", adultsArgs("--db", db)...)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   FilterResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "User", resp.Data.Model)
	assert.Equal(t, "default", resp.Data.Repository)
	assert.Equal(t, 3, resp.Data.Count)
	require.Len(t, resp.Data.Records, 3)
	assert.Equal(t, map[string]any{"id": float64(4), "name": "Alice"}, resp.Data.Records[0])
	assert.Equal(t, "Sam", resp.Data.Records[2]["name"])
}

func TestFilterEmptyResult(t *testing.T) {
	queryFile := filepath.Join(t.TempDir(), "nobody.yaml")
	require.NoError(t, os.WriteFile(queryFile, []byte("name: Nobody\n"), 0644))

	out, err := runFilterCommand(t, "text",
		filepath.Join(testdata, "schema"),
		"--model", "User",
		"--query", queryFile,
		"--records", filepath.Join(testdata, "records", "users.yaml"),
	)
	require.NoError(t, err)
	assert.Equal(t, "0 record(s)\n", out)
}

func TestFilterErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{
			name:     "no source",
			args:     adultsArgs(),
			wantCode: ErrCodeRecordsFile,
		},
		{
			name:     "missing records file",
			args:     adultsArgs("--records", "/nonexistent/users.yaml"),
			wantCode: ErrCodeRecordsFile,
		},
		{
			name:     "unknown driver",
			args:     adultsArgs("--db", "ignored.db", "--driver", "oracle"),
			wantCode: ErrCodeUnknown,
		},
		{
			name:     "missing tables",
			args:     adultsArgs("--db", filepath.Join(t.TempDir(), "empty.db")),
			wantCode: ErrCodeDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runFilterCommand(t, "json", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
