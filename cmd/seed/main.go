// Command seed fills the database with demo users, gifts and contributions.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"giftpool/internal/config"
	"giftpool/internal/database"
	"giftpool/internal/repository"
	"giftpool/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 12, "Number of users to create")
	giftsPerUser := flag.Int("gifts", 3, "Gifts created per user")
	maxContributions := flag.Int("contributions", 6, "Maximum contributions per gift")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	preset := flag.String("preset", "", "Apply a named preset instead of random data")
	password := flag.String("password", seed.DefaultPassword, "Password for every seeded account")
	fast := flag.Bool("fast", false, "Hash passwords at the minimum bcrypt cost")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")

	if *preset != "" {
		names, err := seed.PresetNames()
		if err != nil {
			log.Fatalf("Failed to load presets: %v", err)
		}
		log.Printf("Applying preset: %s (available: %s)", *preset, strings.Join(names, ", "))
	} else {
		log.Printf("Target: %d users, %d gifts each, up to %d contributions per gift, clean=%v",
			*numUsers, *giftsPerUser, *maxContributions, *shouldClean)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	ctx := context.Background()
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	if *shouldClean {
		if err := seed.ClearAll(db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	s := seed.NewSeeder(repository.NewStore(db), *fast)

	var sum *seed.Summary
	if *preset != "" {
		sum, err = s.ApplyPreset(ctx, *preset, *password)
	} else {
		sum, err = s.Seed(ctx, seed.Options{
			Users:                   *numUsers,
			GiftsPerUser:            *giftsPerUser,
			MaxContributionsPerGift: *maxContributions,
			Password:                *password,
		})
	}
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: %d users, %d gifts, %d contributions", sum.Users, sum.Gifts, sum.Contributions)
	log.Printf("All seeded users have the password: %s", *password)
}
