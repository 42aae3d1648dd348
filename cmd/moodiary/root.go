package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"moodiary/pkg/celebrate"
	"moodiary/pkg/config"
	"moodiary/pkg/logger"
	"moodiary/pkg/metrics"
	"moodiary/pkg/services"
	"moodiary/pkg/storage"
)

var (
	globalViper    = config.New()
	globalConfig   *config.Config
	globalLogger   *logger.Logger
	globalMetrics  *metrics.Metrics
	globalEntries  *storage.EntryStore
	globalImages   *storage.ImageStore
	globalSettings *storage.SettingsStore
	globalDiary    *services.DiaryService
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "moodiary",
	Short: "A one-page diary with a daily mood score",
	Long: `moodiary keeps a private diary: one entry per save with a date,
a 0-10 mood score, a note and an optional photo.

Entries live in data/diary.json and photos in uploads/. Run "moodiary serve"
for the web page, or use the other commands to work with the files directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		return setup(cmd.Name() == "serve")
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if globalLogger != nil {
			_ = globalLogger.Close()
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./moodiary.yaml if present)")
	flags.String("data-dir", "", "Directory holding diary.json and settings.json")
	flags.String("uploads-dir", "", "Directory holding uploaded photos")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")

	bindFlag(globalViper, "storage.data_dir", "data-dir")
	bindFlag(globalViper, "storage.uploads_dir", "uploads-dir")
	bindFlag(globalViper, "logger.level", "log-level")
	bindFlag(globalViper, "logger.format", "log-format")
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// setup loads configuration and opens the stores every command works on
func setup(serving bool) error {
	cfg, err := config.Load(globalViper, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	globalConfig = cfg

	log, err := logger.New(logger.Options{Level: cfg.Logger.Level, Format: cfg.Logger.Format})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	globalLogger = log

	if serving && cfg.Metrics.Enabled {
		globalMetrics = metrics.New()
	}

	globalEntries, err = storage.NewEntryStore(cfg.DiaryFile(), log)
	if err != nil {
		return fmt.Errorf("failed to open diary: %w", err)
	}
	globalImages, err = storage.NewImageStore(cfg.Storage.UploadsDir, log)
	if err != nil {
		return fmt.Errorf("failed to open uploads: %w", err)
	}
	globalSettings, err = storage.NewSettingsStore(cfg.SettingsFile(), cfg.Diary.DefaultBackground, log)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}

	birthday, err := celebrate.ParseBirthday(cfg.Diary.Birthday)
	if err != nil {
		return err
	}

	globalDiary = services.NewDiaryService(globalEntries, globalImages, globalSettings, services.Options{
		RecentLimit: cfg.Diary.RecentLimit,
		Owner:       cfg.Diary.Owner,
		Birthday:    birthday,
		Watching:    serving && cfg.Storage.Watch,
		Metrics:     globalMetrics,
		Logger:      log,
	})
	return nil
}
