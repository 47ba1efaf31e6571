package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/database"
	"studypool-backend/internal/model"
)

var fixDryRun bool

func init() {
	fixAdminsCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "report pools that need fixing without changing them")

	dbCmd.AddCommand(checkCmd)
	dbCmd.AddCommand(fixAdminsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(dbCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create or update the database schema using the DB_* environment variables.

Examples:
  # PostgreSQL from .env
  poolctl migrate

  # Local SQLite file
  DB_DRIVER=sqlite DB_PATH=./studypool.db poolctl migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, log, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close(db) }()

		// Connect already migrates
		log.Info("schema up to date")
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and repair pool data",
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Print table counts and pools whose creator lost admin membership",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close(db) }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		report, err := checkPools(ctx, db)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "📈 Table counts:")
		fmt.Fprintf(out, "  - users: %d\n", report.Users)
		fmt.Fprintf(out, "  - pools: %d\n", report.Pools)
		fmt.Fprintf(out, "  - pool_members: %d\n", report.Members)
		fmt.Fprintf(out, "  - canvases: %d\n", report.Canvases)
		fmt.Fprintf(out, "  - files: %d\n", report.Files)
		fmt.Fprintln(out)

		if len(report.BrokenPools) == 0 {
			fmt.Fprintln(out, "✅ Every pool creator is an admin member")
			return nil
		}
		fmt.Fprintf(out, "⚠️  %d pool(s) without creator admin membership:\n", len(report.BrokenPools))
		for _, p := range report.BrokenPools {
			fmt.Fprintf(out, "  - Pool: %d (%s), Creator: %d\n", p.ID, p.Name, p.CreatorID)
		}
		fmt.Fprintln(out, "Run `poolctl db fix-admins` to repair")
		return nil
	},
}

var fixAdminsCmd = &cobra.Command{
	Use:   "fix-admins",
	Short: "Restore admin membership for pool creators",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, log, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close(db) }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		if fixDryRun {
			report, err := checkPools(ctx, db)
			if err != nil {
				return err
			}
			log.Info("dry run", zap.Int("pools_to_fix", len(report.BrokenPools)))
			return nil
		}

		fixed, err := fixCreatorAdmins(ctx, db)
		if err != nil {
			return fmt.Errorf("fix creator admins: %w", err)
		}
		log.Info("creator memberships repaired", zap.Int("pools", fixed))
		return nil
	},
}

func openDB() (*gorm.DB, *zap.Logger, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(database.LoadConfig(), log)
	if err != nil {
		return nil, nil, err
	}
	return db, log, nil
}

// poolReport db check 결과
type poolReport struct {
	Users       int64
	Pools       int64
	Members     int64
	Canvases    int64
	Files       int64
	BrokenPools []model.Pool
}

func checkPools(ctx context.Context, db *gorm.DB) (*poolReport, error) {
	db = db.WithContext(ctx)
	report := &poolReport{}

	counts := []struct {
		model interface{}
		dst   *int64
	}{
		{&model.User{}, &report.Users},
		{&model.Pool{}, &report.Pools},
		{&model.PoolMember{}, &report.Members},
		{&model.Canvas{}, &report.Canvases},
		{&model.File{}, &report.Files},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	broken, err := poolsMissingCreatorAdmin(db)
	if err != nil {
		return nil, err
	}
	report.BrokenPools = broken
	return report, nil
}

func poolsMissingCreatorAdmin(db *gorm.DB) ([]model.Pool, error) {
	var pools []model.Pool
	err := db.Where(`NOT EXISTS (
			SELECT 1 FROM pool_members pm
			WHERE pm.pool_id = pools.id AND pm.user_id = pools.creator_id AND pm.role = ?
		)`, model.MemberRoleAdmin.String()).
		Order("id").
		Find(&pools).Error
	if err != nil {
		return nil, fmt.Errorf("find pools missing creator admin: %w", err)
	}
	return pools, nil
}

// fixCreatorAdmins 생성자 멤버십이 없으면 admin 으로 추가하고, member 이면 admin 으로 올린다
func fixCreatorAdmins(ctx context.Context, db *gorm.DB) (int, error) {
	fixed := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pools, err := poolsMissingCreatorAdmin(tx)
		if err != nil {
			return err
		}

		for _, p := range pools {
			var member model.PoolMember
			err := tx.Where("pool_id = ? AND user_id = ?", p.ID, p.CreatorID).First(&member).Error
			switch {
			case err == nil:
				if err := tx.Model(&member).Update("role", model.MemberRoleAdmin.String()).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&model.PoolMember{
					PoolID: p.ID,
					UserID: p.CreatorID,
					Role:   model.MemberRoleAdmin.String(),
				}).Error; err != nil {
					return err
				}
			default:
				return err
			}
			fixed++
		}
		return nil
	})
	return fixed, err
}
