package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rouzd/facegate/internal/config"
	"github.com/rouzd/facegate/internal/database"
	"github.com/rouzd/facegate/internal/database/postgres"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/rouzd/facegate/internal/recognizer"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <username> <image-file>",
	Short: "Check one image against an enrolled identity",
	Long: `Run a single-shot verification of an image file against the enrolled
reference of one identity. Useful for tuning the distance threshold and
for checking reference image quality after enrollment.

Examples:
  facegate verify alice ./captures/frame-0042.jpg
  facegate verify alice ./captures/frame-0042.jpg --threshold 0.3`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Float64("threshold", 0, "Match distance threshold (defaults to the configured verification threshold)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	username, path := args[0], args[1]

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold == 0 {
		threshold = cfg.Auth.VerifyDistanceThreshold
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer postgres.GetGlobalPool().Close()

	userRepo := postgres.NewUserRepository(postgres.GetGlobalPool())
	ctx := context.Background()

	user, err := userRepo.GetActiveUser(ctx, username)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", username, err)
	}
	if user == nil {
		return fmt.Errorf("username %q is not enrolled", database.NormalizeUsername(username))
	}

	data, err := readReferenceImage(path)
	if err != nil {
		return err
	}

	client := recognizer.NewClient(cfg.Recognizer.URL, cfg.Recognizer.Model, cfg.Recognizer.Timeout)
	decoder := frame.NewDecoder(client)

	face, err := decoder.ExtractFace(ctx, data)
	if errors.Is(err, frame.ErrNoFaceDetected) {
		return fmt.Errorf("no face detected in %s", path)
	}
	if err != nil {
		return fmt.Errorf("extracting face: %w", err)
	}

	result, err := client.Compare(ctx, face, user.FaceImage)
	if err != nil {
		return fmt.Errorf("comparing faces: %w", err)
	}

	matched := result.Matched && result.Distance < threshold
	fmt.Printf("Identity:  %s\n", user.Username)
	fmt.Printf("Distance:  %.4f (threshold %.4f)\n", result.Distance, threshold)
	if matched {
		fmt.Println("Result:    MATCH")
		return nil
	}
	fmt.Println("Result:    NO MATCH")
	return nil
}
