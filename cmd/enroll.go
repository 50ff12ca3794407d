package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rouzd/facegate/internal/config"
	"github.com/rouzd/facegate/internal/database"
	"github.com/rouzd/facegate/internal/database/postgres"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [username] [image-file]",
	Short: "Enroll identities with their reference face images",
	Long: `Enroll one identity from an image file, or a whole directory at once.

In directory mode each image file enrolls one identity named after the
file (without extension). Already enrolled usernames are skipped, so the
command can be re-run after adding files.

Examples:
  # Enroll a single identity
  facegate enroll alice ./faces/alice.jpg

  # Enroll every image in a directory (4 concurrent workers)
  facegate enroll --dir ./faces

  # Use different concurrency
  facegate enroll --dir ./faces --concurrency 2`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory of reference images to enroll")
	enrollCmd.Flags().Int("concurrency", 4, "Number of parallel workers in directory mode")
	enrollCmd.Flags().String("email", "", "Email address (single identity mode only)")
}

// imageExtensions lists the reference image formats accepted for enrollment.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// readReferenceImage loads and validates one reference image file.
func readReferenceImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := frame.ValidateImage(data); err != nil {
		return nil, fmt.Errorf("%s is not a usable image: %w", path, err)
	}
	return data, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer postgres.GetGlobalPool().Close()

	userRepo := postgres.NewUserRepository(postgres.GetGlobalPool())
	ctx := context.Background()

	if dir != "" {
		if len(args) != 0 {
			return errors.New("directory mode takes no positional arguments")
		}
		return enrollDirectory(ctx, cmd, userRepo, dir)
	}

	if len(args) != 2 {
		return errors.New("expected: facegate enroll <username> <image-file>")
	}
	return enrollSingle(ctx, cmd, userRepo, args[0], args[1])
}

func enrollSingle(ctx context.Context, cmd *cobra.Command, userRepo *postgres.UserRepository, username, path string) error {
	data, err := readReferenceImage(path)
	if err != nil {
		return err
	}

	id, err := userRepo.CreateUser(ctx, username, mustGetString(cmd, "email"), data)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateUser) {
			return fmt.Errorf("username %q is already enrolled", database.NormalizeUsername(username))
		}
		return fmt.Errorf("enrolling %s: %w", username, err)
	}

	fmt.Printf("Enrolled %s (id %d)\n", database.NormalizeUsername(username), id)
	return nil
}

func enrollDirectory(ctx context.Context, cmd *cobra.Command, userRepo *postgres.UserRepository, dir string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		fmt.Println("No image files found, nothing to enroll")
		return nil
	}

	fmt.Printf("Found %d reference images\n\n", len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling identities"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("users"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped, failed int
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, name := range files {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			username := strings.TrimSuffix(name, filepath.Ext(name))
			data, err := readReferenceImage(filepath.Join(dir, name))
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			_, err = userRepo.CreateUser(ctx, username, "", data)
			mu.Lock()
			switch {
			case errors.Is(err, database.ErrDuplicateUser):
				skipped++
			case err != nil:
				failed++
			default:
				enrolled++
			}
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	fmt.Printf("\n\nEnrolled: %d, skipped (already enrolled): %d, failed: %d\n", enrolled, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d images could not be enrolled", failed)
	}
	return nil
}
