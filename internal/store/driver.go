package store

import (
	"database/sql"
	"regexp"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// SQLiteDriver is the database/sql driver name registered by this package.
const SQLiteDriver = "sqlite3_relq"

func init() {
	sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("regexp", regexpMatch, true); err != nil {
				return err
			}
			_, err := conn.Exec("PRAGMA case_sensitive_like = ON", nil)
			return err
		},
	})
	sqlx.BindDriver(SQLiteDriver, sqlx.QUESTION)
}

var patterns sync.Map // string -> *regexp.Regexp

// regexpMatch implements "value REGEXP pattern". A NULL value yields NULL.
func regexpMatch(pattern string, value any) (any, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return nil, nil
	}
	re, ok := patterns.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		re, _ = patterns.LoadOrStore(pattern, compiled)
	}
	return re.(*regexp.Regexp).MatchString(s), nil
}
