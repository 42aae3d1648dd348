package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"moodiary/pkg/models"
	"moodiary/pkg/services"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent entries",
	Long:  "List the most recently saved entries, newest first.",
	RunE:  runList,
}

var addCmd = &cobra.Command{
	Use:   "add <note>",
	Short: "Add an entry",
	Long:  "Save a new entry with today's date unless --date is given.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id | #position]",
	Short: "Delete an entry",
	Long: `Delete an entry by id. Entries saved before ids existed are shown by
"list" as #position; pass that, or use --position.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDelete,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all entries",
	Long:  "Write every entry, oldest first, as JSON or YAML.",
	RunE:  runExport,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Give legacy entries an id",
	Long:  "Assign an id to every entry saved without one so it can be deleted by id.",
	RunE:  runMigrate,
}

// Flags
var (
	listLimit      int
	addDate        string
	addScore       float64
	addPhoto       string
	deletePosition int
	exportFormat   string
	exportOutput   string
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(migrateCmd)

	listCmd.Flags().IntVar(&listLimit, "limit", 10, "Maximum number of entries to show")

	addCmd.Flags().StringVar(&addDate, "date", "", "Entry date as YYYY-MM-DD (default today)")
	addCmd.Flags().Float64Var(&addScore, "score", 7.0, "Mood score from 0 to 10 in steps of 0.5")
	addCmd.Flags().StringVar(&addPhoto, "photo", "", "Path to a jpg or png photo")

	deleteCmd.Flags().IntVar(&deletePosition, "position", -1, "Position in the full collection, 0 is the oldest")

	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runList(cmd *cobra.Command, args []string) error {
	if _, err := globalEntries.Load(); err != nil {
		return err
	}

	recent := globalEntries.Recent(listLimit)
	if len(recent) == 0 {
		fmt.Println("No entries yet.")
		return nil
	}

	for _, item := range recent {
		e := item.Entry
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("#%d", item.Position)
		}
		fmt.Printf("%s  %s  %.1f/10  %s\n", id, e.Date, e.Score, firstLine(e.Note))
		if e.HasImage() {
			fmt.Printf("          photo: %s\n", e.Image)
		}
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	date := addDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	var upload *services.Upload
	if addPhoto != "" {
		data, err := os.ReadFile(addPhoto)
		if err != nil {
			return fmt.Errorf("failed to read photo: %w", err)
		}
		upload = &services.Upload{Name: addPhoto, Data: data}
	}

	entry, err := globalDiary.SaveEntry(models.EntryForm{
		Date:  date,
		Score: addScore,
		Note:  args[0],
	}, upload)
	if err != nil {
		return err
	}

	fmt.Printf("Entry saved: %s (%s, %.1f/10)\n", entry.ID, entry.Date, entry.Score)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	var (
		removed models.DiaryEntry
		err     error
	)
	switch {
	case len(args) == 1 && strings.HasPrefix(args[0], "#"):
		position, convErr := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if convErr != nil {
			return fmt.Errorf("invalid position %q", args[0])
		}
		removed, err = globalDiary.DeleteEntryAt(position)
	case len(args) == 1:
		removed, err = globalDiary.DeleteEntry(args[0])
	case deletePosition >= 0:
		removed, err = globalDiary.DeleteEntryAt(deletePosition)
	default:
		return fmt.Errorf("give an entry id or --position")
	}
	if err != nil {
		return err
	}

	fmt.Printf("Entry deleted: %s %s\n", removed.Date, firstLine(removed.Note))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	entries, err := globalDiary.Entries()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.DiaryEntry{}
	}

	var out io.Writer = os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()
		out = f
	}

	return writeEntries(out, exportFormat, entries)
}

func writeEntries(out io.Writer, format string, entries []models.DiaryEntry) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	changed, err := globalEntries.BackfillIDs()
	if err != nil {
		return err
	}
	if changed == 0 {
		fmt.Println("Every entry already has an id.")
		return nil
	}
	fmt.Printf("Gave %d entries an id.\n", changed)
	return nil
}

func firstLine(note string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(note), "\n")
	if len([]rune(line)) > 60 {
		return string([]rune(line)[:57]) + "..."
	}
	return line
}
