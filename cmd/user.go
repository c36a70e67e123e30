package cmd

import (
	"context"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var (
	adminName     string
	adminPhone    string
	adminEmail    string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	Long:  `Administrators cannot register through the API; this command seeds them`,
	RunE:  runCreateAdmin,
}

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "display name")
	createAdminCmd.Flags().StringVar(&adminPhone, "phone", "", "login phone number")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "optional email address")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "initial password")
	_ = createAdminCmd.MarkFlagRequired("name")
	_ = createAdminCmd.MarkFlagRequired("phone")
	_ = createAdminCmd.MarkFlagRequired("password")

	userCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(userCmd)
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	in := services.RegisterInput{
		Name:     adminName,
		Phone:    adminPhone,
		Password: adminPassword,
		Role:     models.RoleAdmin,
	}
	if adminEmail != "" {
		in.Email = &adminEmail
	}

	user, err := rt.auth.CreateAdmin(ctx, in)
	if err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID.String()).Str("phone", user.Phone).Msg("Administrator created")
	return nil
}
