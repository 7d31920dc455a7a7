package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"overlay-core/internal/model"
	"overlay-core/pkg/config"
	"overlay-core/pkg/database"
	"overlay-core/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var command, dir string
	var version, steps int
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, steps, force, version, auto")
	flag.StringVar(&dir, "path", "migrations", "Migrations directory")
	flag.IntVar(&version, "v", -1, "Version for force command")
	flag.IntVar(&steps, "n", 1, "Number of steps for steps command (negative to roll back)")
	flag.Parse()

	// 加载配置
	config.Init()
	db := config.Global.DB

	// auto: 直接用 GORM AutoMigrate，只用于本地开发
	if command == "auto" {
		logger.Init(config.Global.App.Env)
		defer logger.Sync()
		gdb, err := database.ConnectPostgres(database.DSN(db), config.Global.App.Env, logger.Named("db"))
		if err != nil {
			log.Fatalf("Database connect failed: %v", err)
		}
		if err := gdb.AutoMigrate(model.AllModels()...); err != nil {
			log.Fatalf("AutoMigrate failed: %v", err)
		}
		log.Println("AutoMigrate done")
		return
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		db.User, db.Password, db.Host, db.Port, db.Name)

	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migration up done")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration down done")
	case "steps":
		if err := m.Steps(steps); err != nil {
			log.Fatalf("Migration steps failed: %v", err)
		}
		log.Printf("Migrated %d steps", steps)
	case "force":
		if version == -1 {
			log.Fatal("Version (-v) is required for force command")
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Migration force failed: %v", err)
		}
		log.Printf("Migration forced to version %d", version)
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Read version failed: %v", err)
		}
		log.Printf("Current version: %d (dirty=%v)", v, dirty)
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
