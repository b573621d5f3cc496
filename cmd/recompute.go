package cmd

import (
	"errors"
	"fmt"

	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/service"
	"learnpulse_backend/pkg/database"
	"learnpulse_backend/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "重算指定学员的学习画像",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetUint("user")
		if userID == 0 {
			return errors.New("--user is required")
		}

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger.InitLogger(cfg)
		defer logger.Log.Sync()

		db, err := database.InitDB(&cfg.Database, false)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		progress := service.NewProgressService(
			repository.NewAttemptRepository(db),
			repository.NewActivityRepository(db),
			repository.NewProfileRepository(db),
			repository.NewRoadmapRepository(db),
			repository.NewCourseRepository(db),
			cfg.Recommendation.HistorySize,
		)
		written, err := progress.RecomputeProfile(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if !written {
			fmt.Fprintf(cmd.OutOrStdout(), "user %d has no completed attempts, profile unchanged\n", userID)
			return nil
		}

		profile, err := progress.GetProfile(cmd.Context(), userID)
		if err != nil {
			return err
		}
		stats := profile.OverallStats.Data()
		logger.Log.Info("Profile recomputed", zap.Uint("user_id", userID), zap.Int("attempts", stats.TotalAttempts))
		fmt.Fprintf(cmd.OutOrStdout(), "user %d: %d attempts, average %d, accuracy %d%%\n",
			userID, stats.TotalAttempts, stats.AverageScore, stats.OverallAccuracy)
		for _, t := range profile.TopicMastery {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %3d%%  %s\n", t.Topic, t.Accuracy, t.Tier)
		}
		return nil
	},
}

func init() {
	recomputeCmd.Flags().Uint("user", 0, "学员ID")
}
