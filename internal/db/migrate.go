package db

import (
	"log"

	"artflow-sync/internal/store"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&store.SnapshotRecord{},
	)

	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}
