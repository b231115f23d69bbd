package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/orgmirror/orgmirror/internal/core"
	"github.com/orgmirror/orgmirror/pkg/cache"
	"github.com/orgmirror/orgmirror/pkg/directory"
	"github.com/orgmirror/orgmirror/pkg/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the directory mirror.",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := util.DefaultLogger(viper.GetBool("debug"), viper.GetString("log_dir"))
		if err != nil {
			log.Fatalf("failed to initialize logger: %s", err)
		}

		cfg := core.Config{
			DatabaseDSN: viper.GetString("database.dsn"),
			LDAP: directory.LDAPConfig{
				URL:          viper.GetString("ldap.url"),
				BindDN:       viper.GetString("ldap.bind_dn"),
				BindPassword: viper.GetString("ldap.bind_password"),
				SkipTLS:      viper.GetBool("ldap.skip_tls"),
			},
			Sync: cache.Config{
				CompanyBaseDN:       viper.GetString("tree.company_base_dn"),
				GroupBaseDN:         viper.GetString("tree.group_base_dn"),
				UserBaseDN:          viper.GetString("tree.user_base_dn"),
				QuarantineDN:        viper.GetString("tree.quarantine_dn"),
				PlaceholderMemberDN: viper.GetString("tree.placeholder_member_dn"),
			},
			ResyncInterval: viper.GetDuration("resync_interval"),
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := core.New(cfg, logger)
		if err != nil {
			log.Fatalf("failed to build the core: %s", err)
		}

		if err = c.Init(ctx); err != nil {
			log.Fatalf("failed to initialize the core: %s", err)
		}

		if err = c.Run(ctx); err != nil && err != context.Canceled {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
