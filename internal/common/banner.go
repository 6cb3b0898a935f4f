package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the startup banner with the run mode
func PrintBanner(version string, dryRun bool) {
	banner.Print("Optout", version)
	if dryRun {
		fmt.Println("  mode: DRY RUN (no unsubscribe requests will be sent)")
		return
	}
	fmt.Println("  mode: LIVE")
}
