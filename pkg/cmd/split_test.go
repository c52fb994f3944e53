package cmd

import (
	"path/filepath"
	"testing"

	"github.com/pseudomuto/stagekeeper/pkg/cmd/testutil"
	"github.com/stretchr/testify/require"
)

const routineScript = `CREATE TABLE t (note TEXT);
DELIMITER $$
CREATE TRIGGER t_note BEFORE INSERT ON t BEGIN SELECT 1; END $$
DELIMITER ;
INSERT INTO t VALUES ('a;b');
`

func TestSplitCommand(t *testing.T) {
	fixture := testutil.TestProject(t, "pipeline: split\n").WithFile("routines.sql", routineScript)
	path := filepath.Join(fixture.Dir, "routines.sql")

	res, err := testutil.RunCommand(t, split(), "", path)
	require.NoError(t, err)
	require.Equal(t, `-- statement 1 (delimiter ;)
CREATE TABLE t (note TEXT)

-- statement 2 (delimiter $$)
CREATE TRIGGER t_note BEFORE INSERT ON t BEGIN SELECT 1; END

-- statement 3 (delimiter ;)
INSERT INTO t VALUES ('a

-- statement 4 (delimiter ;)
b')

-- 4 statement(s)
`, res.Stdout.String())

	res, err = testutil.RunCommand(t, split(), "", "--quote-aware", path)
	require.NoError(t, err)
	require.Contains(t, res.Stdout.String(), "INSERT INTO t VALUES ('a;b')\n")
	require.Contains(t, res.Stdout.String(), "-- 3 statement(s)\n")
}

func TestSplitCommand_Errors(t *testing.T) {
	_, err := testutil.RunCommand(t, split(), "")
	require.EqualError(t, err, "exactly one script is required")

	_, err = testutil.RunCommand(t, split(), "", "missing.sql")
	require.ErrorContains(t, err, "failed to open script")
}
