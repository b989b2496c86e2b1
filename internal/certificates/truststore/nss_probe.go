package truststore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// NSS stores the certificate nickname (CKA_LABEL) in column a3 of nssPublic.
// Some writers include the trailing NUL, so both forms are matched.
const nssLabelQuery = `SELECT COUNT(*) FROM nssPublic WHERE a3 = ? OR a3 = ?`

// ProbeLabel reports whether the NSS database in databaseDirectory still holds an object
// labelled label. A directory without cert9.db has nothing in it and is not an error.
func ProbeLabel(databaseDirectory string, label string) (bool, error) {
	databasePath := filepath.Join(databaseDirectory, nssDatabaseFileName)
	if _, statErr := os.Stat(databasePath); statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", databasePath, statErr)
	}

	conn, openErr := sqlite.OpenConn(databasePath, sqlite.OpenReadOnly)
	if openErr != nil {
		return false, fmt.Errorf("open %s: %w", databasePath, openErr)
	}
	defer conn.Close()

	var matches int64
	queryErr := sqlitex.Execute(conn, nssLabelQuery, &sqlitex.ExecOptions{
		Args: []any{[]byte(label), []byte(label + "\x00")},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			matches = stmt.ColumnInt64(0)
			return nil
		},
	})
	if queryErr != nil {
		return false, fmt.Errorf("query %s: %w", databasePath, queryErr)
	}
	return matches > 0, nil
}
