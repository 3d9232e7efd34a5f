package main

import (
	"fmt"
	"os"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/internal/services"
)

// Recomputes every solution's averageRating and totalRatings from its
// comments. Run against the SQL backend; the memory backend starts empty.
func main() {
	path := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Backend != repository.BackendSQL {
		fmt.Printf("Storage backend is %q, nothing to reconcile\n", cfg.Storage.Backend)
		return
	}

	repos, err := repository.Open(cfg)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer repos.Close()

	solutions, err := repos.Solutions.Find(repository.SolutionQuery{}, repository.FindOptions{Limit: repository.Unlimited})
	if err != nil {
		fmt.Printf("Failed to list solutions: %v\n", err)
		os.Exit(1)
	}

	rating := services.NewRatingService(repos)
	repaired := 0
	fmt.Printf("%-5s %-20s %-25s %s\n", "ID", "Plant", "Disease", "Result")
	for _, s := range solutions {
		fixed, err := rating.Reconcile(s.ID)
		result := "ok"
		switch {
		case err != nil:
			result = "error: " + err.Error()
		case fixed:
			result = "repaired"
			repaired++
		}
		fmt.Printf("%-5d %-20s %-25s %s\n", s.ID, s.Plant, s.Disease, result)
	}

	fmt.Printf("\nChecked %d solutions, repaired %d\n", len(solutions), repaired)
}
