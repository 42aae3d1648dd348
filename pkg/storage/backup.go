package storage

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"time"

	"moodiary/pkg/utils"
)

// BackupSources lists what goes into a backup archive
type BackupSources struct {
	DiaryFile    string
	SettingsFile string
	UploadsDir   string
}

// Backup creates a zip archive in destDir holding the diary file, the
// settings file and every uploaded photo. Missing sources are skipped.
func Backup(destDir string, src BackupSources, now time.Time) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	timestamp := now.Format("20060102-150405")
	zipPath := filepath.Join(destDir, "diary-backup-"+timestamp+".zip")

	// Never truncate an earlier backup taken in the same second.
	zipFile, err := os.OpenFile(zipPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		zipPath = filepath.Join(destDir, "diary-backup-"+timestamp+"-"+utils.GenerateShortUUID()+".zip")
		zipFile, err = os.OpenFile(zipPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return "", err
	}

	zipWriter := zip.NewWriter(zipFile)
	if err := addBackupFiles(zipWriter, src); err != nil {
		zipWriter.Close()
		zipFile.Close()
		os.Remove(zipPath)
		return "", err
	}
	if err := zipWriter.Close(); err != nil {
		zipFile.Close()
		os.Remove(zipPath)
		return "", err
	}
	if err := zipFile.Close(); err != nil {
		os.Remove(zipPath)
		return "", err
	}
	return zipPath, nil
}

func addBackupFiles(zw *zip.Writer, src BackupSources) error {
	for _, file := range []string{src.DiaryFile, src.SettingsFile} {
		if file == "" {
			continue
		}
		if err := addZipFile(zw, file, "data/"+filepath.Base(file)); err != nil {
			return err
		}
	}

	if src.UploadsDir == "" {
		return nil
	}
	images, err := os.ReadDir(src.UploadsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, img := range images {
		if img.IsDir() {
			continue
		}
		if err := addZipFile(zw, filepath.Join(src.UploadsDir, img.Name()), "uploads/"+img.Name()); err != nil {
			return err
		}
	}
	return nil
}

func addZipFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
