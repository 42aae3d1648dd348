package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Zip the diary, settings and photos",
	Long:  "Write a timestamped zip of data/diary.json, data/settings.json and uploads/.",
	RunE:  runBackup,
}

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Move an unreadable diary file aside",
	Long: `Move data/diary.json into data/corrupted/ so the diary starts empty.
Use this only when the file cannot be read; nothing is deleted.`,
	RunE: runQuarantine,
}

var backupDir string

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(quarantineCmd)

	backupCmd.Flags().StringVar(&backupDir, "dir", "", "Destination directory (default from config, backups)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	dest := backupDir
	if dest == "" {
		dest = globalConfig.Storage.BackupDir
	}

	zipPath, err := globalDiary.Backup(dest)
	if err != nil {
		return err
	}
	fmt.Printf("Backup written: %s\n", zipPath)
	return nil
}

func runQuarantine(cmd *cobra.Command, args []string) error {
	moved, err := globalDiary.Quarantine()
	if err != nil {
		return err
	}
	if moved == "" {
		fmt.Println("No diary file to move.")
		return nil
	}
	fmt.Printf("Diary file moved to %s\n", moved)
	return nil
}
