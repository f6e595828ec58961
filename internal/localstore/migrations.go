package localstore

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/hyperengineering/till/migrations"
	"github.com/pressly/goose/v3"
)

// gooseMu guards goose's package-level base FS and dialect.
var gooseMu sync.Mutex

// RunMigrations applies all pending schema migrations using goose and
// returns the resulting schema version.
// It uses the embedded SQL files from the migrations package.
func RunMigrations(db *sql.DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
