package main

import (
	"fmt"
	"time"

	"github.com/ternarybob/optout/internal/models"
)

func printSummary(s *models.RunSummary) {
	fmt.Println()
	fmt.Printf("Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Printf("  fetched:    %d\n", s.Fetched)
	fmt.Printf("  marketing:  %d\n", s.Marketing)
	fmt.Printf("  blocked:    %d\n", s.Blocked)
	fmt.Printf("  eligible:   %d\n", s.Eligible)
	fmt.Printf("  succeeded:  %d\n", s.Succeeded)
	fmt.Printf("  failed:     %d\n", s.Failed)
	if s.Cancelled {
		fmt.Println("  run was cancelled before all emails were processed")
	}
	if s.Simulated {
		fmt.Println()
		fmt.Println("Dry run: no unsubscribe requests were sent. Re-run with -live to act.")
	}
}
