package main

import (
	"log"
	"time"

	"sda-reconciliation-backend/internal/config"
	"sda-reconciliation-backend/internal/ledger"
	"sda-reconciliation-backend/internal/models"
	"sda-reconciliation-backend/internal/routes"
	"sda-reconciliation-backend/internal/services/matching"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	db := config.InitDB()

	if err := db.AutoMigrate(
		&models.BankAccount{},
		&models.BankTransaction{},
		&models.ImportBatch{},
		&models.MatchAuditLog{},
		&ledger.Entry{},
	); err != nil {
		log.Fatalf("migrating schema: %v", err)
	}

	policy := matching.DefaultPolicy()
	if path := config.PolicyPath(); path != "" {
		loaded, err := matching.LoadPolicy(path)
		if err != nil {
			log.Fatalf("loading matching policy: %v", err)
		}
		policy = loaded
		log.Printf("matching policy loaded from %s", path)
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// The accounting-platform sync client is wired by deployments that
	// configure one; the CSV import path works without it.
	routes.RegisterRoutes(r, db, policy, nil)

	if err := r.Run(config.ListenAddr()); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
