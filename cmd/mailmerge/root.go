package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repaircafe/backend/internal/app"
	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/logger"
	"repaircafe/backend/internal/service"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mailmerge",
	Short: "Repair Café Leonberg mail merge tool",
	Long: `mailmerge renders personalized mails for the member directory
and sends them through the configured transport.

Configuration is read from REPAIRCAFE_* environment variables and .env,
the same way the server does.

Example:
  mailmerge members list --tag Team
  mailmerge render --draft einladung.yaml --member m-1
  mailmerge send --draft einladung.yaml --tag Team --dry-run`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable info logging")

	rootCmd.AddCommand(sendCmd, renderCmd, membersCmd, migrateCmd, hashPasswordCmd)
}

// environment 命令执行期间共用的配置、日志和服务
type environment struct {
	cfg     *config.Config
	log     *zap.Logger
	stores  *app.Stores
	members *service.MemberService
	mailing *service.MailingService
}

// openEnvironment 加载配置并打开成员目录，withMail 为 true 时同时准备发送通道
func openEnvironment(ctx context.Context, withMail bool) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.FromAppConfig(cfg.Log)
	if !verbose {
		logCfg.Level = "warn"
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:     cfg,
		log:     log,
		stores:  stores,
		members: service.NewMemberService(stores.Members, log.Named("members")),
	}

	mail := &app.Mail{}
	if withMail {
		if mail, err = app.OpenMail(cfg.Mail, log); err != nil {
			stores.Close(log)
			return nil, err
		}
	}
	env.mailing = service.NewMailingService(mail.Dispatcher, env.members, cfg.Mail.MaxAttachmentBytes, log.Named("mailing"))

	return env, nil
}

func (e *environment) Close() {
	e.stores.Close(e.log)
	_ = e.log.Sync()
}
