package main

import (
	"context"
	"os"
	"strings"

	"github.com/nimasrn/group-factory/internal/config"
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/shopspring/decimal"
)

// main.go [migrate|rollback|status] --dir=./migrations --env=.env
// main.go create-account --username=alice --balance=10.00 [--admin]
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	pgConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	switch command() {
	case "migrate":
		err = pg.Migrate(pgConf, getMigrationPath())
	case "rollback":
		err = pg.Rollback(pgConf, getMigrationPath())
	case "status":
		err = pg.MigrationStatus(pgConf, getMigrationPath())
	case "create-account":
		err = createAccount(pgConf)
	default:
		logger.Error("unknown command", "command", command())
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", command(), "error", err)
		os.Exit(1)
	}
}

func createAccount(pgConf pg.Config) error {
	username := flagValue("--username=")
	if username == "" {
		logger.Error("--username is required")
		os.Exit(2)
	}

	balance := decimal.Zero
	if v := flagValue("--balance="); v != "" {
		b, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		balance = b
	}

	gdb, err := pg.Create(pgConf, false)
	if err != nil {
		return err
	}
	db := pg.Wrap(gdb, gdb)

	account, err := repository.NewAccountRepository(db).Create(context.Background(), &model.Account{
		Username: username,
		Balance:  balance,
		IsAdmin:  hasFlag("--admin"),
	})
	if err != nil {
		return err
	}

	logger.Info("account created", "id", account.ID, "username", account.Username, "balance", account.Balance.String())
	return nil
}

func command() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return "migrate"
}

func flagValue(prefix string) string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}

func hasFlag(name string) bool {
	for _, v := range os.Args {
		if v == name {
			return true
		}
	}
	return false
}

func getEnvPath() string {
	if p := flagValue("--env="); p != "" {
		if _, err := os.Stat(p); err != nil {
			logger.Error("failed to open the passed env file, got error" + err.Error())
			return ""
		}
		return p
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	if p := flagValue("--dir="); p != "" {
		return p
	}
	return "./migrations"
}
