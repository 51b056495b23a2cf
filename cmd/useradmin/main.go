// Command useradmin creates an account directly in the database.
//
//	useradmin -username root -email root@example.com -roles ADMIN -d postgres://...
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/config"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
	"github.com/dmitrijs2005/emes-auth/internal/useradmin"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()

	opts, err := useradmin.ParseOptions(os.Args[1:])
	if err != nil {
		return err
	}

	db, err := repomanager.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	svc := services.NewUserService(repomanager.NewPostgresStore(db, rm), auth.NewBcryptHasher(cfg.BcryptCost), logger)

	_, err = useradmin.Run(ctx, svc, opts, os.Stdin, os.Stdout, int(os.Stdin.Fd()))
	return err
}
