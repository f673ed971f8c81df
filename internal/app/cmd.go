package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッション等のクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandBootstrapAdmin は最初の管理者を作成することを示す。
	CommandBootstrapAdmin Command = "bootstrap-admin"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はeliteeightのコマンドツリーを構築する。
// サブコマンドを省略した場合はserveとして動作する。
// ログはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "eliteeight",
		Short:         "Elite Eight site backend",
		Long:          "Elite Eight のマーケティングサイトと管理画面のAPIサーバー。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(w, CommandServe, runServe)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the API server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withConfig(w, CommandServe, runServe)
			},
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run the periodic cleanup worker",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withConfig(w, CommandWorker, runWorker)
			},
		},
		newMigrateCommand(w),
		newBootstrapAdminCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			if down > 0 {
				return runRollback(cfg, down)
			}
			return runMigrate(cfg)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "Roll back the given number of migrations instead of applying")
	return cmd
}

func newBootstrapAdminCommand(w io.Writer) *cobra.Command {
	var opts bootstrapOptions
	cmd := &cobra.Command{
		Use:   string(CommandBootstrapAdmin),
		Short: "Create the first admin account",
		Long: `最初の管理者アカウントを作成する。
既に管理者が存在する場合は --force を指定しない限り何もしない。
パスワードを省略した場合は ELITEEIGHT_ADMIN_PASSWORD を使用する。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = os.Getenv("ELITEEIGHT_ADMIN_PASSWORD")
			}
			if opts.Password == "" {
				return fmt.Errorf("--password or ELITEEIGHT_ADMIN_PASSWORD is required")
			}
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runBootstrapAdmin(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "Admin email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "Admin password")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Create or promote even if an admin already exists")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// healthcheck は軽量サブコマンドのため、設定の読み込みを行わない。
func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Check the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = os.Getenv("SERVER_PORT")
			}
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Server port (default: $SERVER_PORT or 8080)")
	return cmd
}
