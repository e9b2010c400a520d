package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/KAsare1/trainer-booking-server/cmd/api"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/config"
	"github.com/KAsare1/trainer-booking-server/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	utils.SetupLogger(cfg.LogLevel, cfg.IsDevelopment())

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations(cfg)
			return
		case "clear-db":
			runDatabaseClear(cfg)
			return
		default:
			log.Fatal().Msgf("Unknown command: %s", os.Args[1])
		}
	}

	startServer(cfg)
}

func openDatabase(cfg config.Config) *gorm.DB {
	DB, err := db.NewPSQLStorage(db.Options{
		URL:             cfg.DBURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogSQL:          cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database initialization error")
	}
	log.Info().Msg("connected to the database")
	return DB
}

func closeDatabase(DB *gorm.DB) {
	sqlDB, err := DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
	log.Info().Msg("database connection closed")
}

func runMigrations(cfg config.Config) {
	DB := openDatabase(cfg)
	defer closeDatabase(DB)

	if err := performMigrations(DB); err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}
	log.Info().Msg("migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	log.Info().Msg("starting database migrations")
	for _, model := range db.Models() {
		name := fmt.Sprintf("%T", model)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Info().Str("model", name).Msg("migration successful")
	}
	return nil
}

func startServer(cfg config.Config) {
	DB := openDatabase(cfg)
	defer closeDatabase(DB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := api.NewAPIServer(cfg, DB).Run(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("server stopped")
}

// clearDatabase drops the given tables, or every table when none are named.
// Children go first so foreign keys do not block the drop.
func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		all := db.Models()
		for i := len(all) - 1; i >= 0; i-- {
			tables = append(tables, all[i])
		}
	}

	log.Info().Msg("dropping tables")
	var failed int
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Warn().Err(err).Msgf("dropping table %T", table)
			failed++
			continue
		}
		log.Info().Msgf("table %T dropped", table)
	}
	if failed > 0 {
		return fmt.Errorf("%d tables could not be dropped", failed)
	}
	return nil
}

func runDatabaseClear(cfg config.Config) {
	DB := openDatabase(cfg)
	defer closeDatabase(DB)

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	confirmation, _ := reader.ReadString('\n')
	if strings.TrimSpace(confirmation) != "yes" {
		log.Info().Msg("database clearing cancelled")
		return
	}

	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	tableNames, _ := reader.ReadString('\n')

	tables, unknown := selectTables(DB, tableNames)
	for _, name := range unknown {
		log.Warn().Str("table", name).Msg("unknown table")
	}
	if strings.TrimSpace(tableNames) != "" && len(tables) == 0 {
		log.Info().Msg("no known tables named, nothing cleared")
		return
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatal().Err(err).Msg("error clearing database")
	}
	log.Info().Msg("database cleared successfully")
}

// selectTables resolves comma separated table names against the known
// models.
func selectTables(DB *gorm.DB, input string) (tables []interface{}, unknown []string) {
	byName := make(map[string]interface{})
	for _, model := range db.Models() {
		stmt := &gorm.Statement{DB: DB}
		if err := stmt.Parse(model); err != nil {
			continue
		}
		byName[stmt.Schema.Table] = model
	}
	for _, name := range strings.Split(input, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if model, ok := byName[name]; ok {
			tables = append(tables, model)
			continue
		}
		unknown = append(unknown, name)
	}
	return tables, unknown
}
