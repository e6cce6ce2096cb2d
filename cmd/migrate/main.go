// Command migrate applies or rolls back the SQL migrations in ./migrations.
//
//	migrate up | down | seed | version | to <n>
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"ms-rental/internal/config"
	"ms-rental/internal/database/migrations"
	"ms-rental/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewWriterLogger(os.Stdout)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|seed|version|to <n>")
		os.Exit(2)
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("open postgres: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("postgres unreachable: %v", err))
	}

	opts := migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}
	runner := migrations.NewRunner(sqldb, opts, log)
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		err = runner.MigrateTo(migrations.SchemaVersion)
	case "seed":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		if len(os.Args) < 3 {
			log.Fatal("MIGRATE", "missing target version")
		}
		var version uint64
		version, err = strconv.ParseUint(os.Args[2], 10, 32)
		if err == nil {
			err = runner.MigrateTo(uint(version))
		}
	case "version":
		version, dirty, verr := runner.Version()
		if verr != nil {
			err = verr
			break
		}
		log.Info("MIGRATE", fmt.Sprintf("version %d (dirty=%t)", version, dirty))
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("%s done", os.Args[1]))
}
