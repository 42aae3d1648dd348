package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"moodiary/pkg/models"
)

var seedCmd = &cobra.Command{
	Use:    "seed",
	Short:  "Fill the diary with sample entries",
	Long:   "Append sample entries on consecutive days ending today. Handy for trying the page and its milestone banners.",
	Hidden: true,
	RunE:   runSeed,
}

var seedCount int

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "Number of entries to add")
}

// sampleNote returns the note for the i-th sample entry
func sampleNote(i int) string {
	notes := []string{
		"Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
		"Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		"Ut enim ad minim veniam, quis nostrud exercitation ullamco.",
		"Duis aute irure dolor in reprehenderit in voluptate velit esse.",
		"Excepteur sint occaecat cupidatat non proident.",
	}
	return notes[i%len(notes)]
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	today := time.Now()
	for i := 0; i < seedCount; i++ {
		day := today.AddDate(0, 0, i-seedCount+1)
		score := float64((i*3)%21) / 2
		if _, err := globalDiary.SaveEntry(models.EntryForm{
			Date:  day.Format("2006-01-02"),
			Score: score,
			Note:  sampleNote(i),
		}, nil); err != nil {
			return fmt.Errorf("failed to add sample entry %d: %w", i+1, err)
		}
	}

	fmt.Printf("Added %d sample entries.\n", seedCount)
	return nil
}
