package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ponyo877/salachat/coordinator"
	"github.com/ponyo877/salachat/session"
	"github.com/ponyo877/salachat/transcript"
)

var (
	cfgFile            string
	coordinatorAddress string
	coordinatorName    string
	displayName        string
	credential         string
	transcriptPath     string
	logPath            string
)

const (
	coordinatorAddressKey = "coordinator_address"
	coordinatorNameKey    = "coordinator_name"
	displayNameKey        = "display_name"
	credentialKey         = "credential"
	transcriptPathKey     = "transcript_path"
	logPathKey            = "log_path"
)

var rootCmd = &cobra.Command{
	Use:   "salachat",
	Short: "Cliente de chat de terminal",
	Long: `salachat abre una sesión de chat interactiva contra un coordinador
remoto: menú de salas, entrega de mensajes en vivo mientras escribes y
reconexión automática si se pierde el enlace.`,
	SilenceUsage: true,
	RunE:         runSession,
}

// Execute runs the root command. Exit status: 0 on user-initiated exit,
// non-zero on unrecoverable failures (reconnection exhaustion included).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.salachat.yaml)")
	rootCmd.PersistentFlags().String("coordinator", "ws://localhost:9090/ws", "Address of the coordinator websocket endpoint")
	rootCmd.PersistentFlags().String("coordinator-name", "coordinator", "Well-known name the coordinator is registered under")
	rootCmd.PersistentFlags().StringP("name", "n", "", "Display name for this session")
	rootCmd.PersistentFlags().String("credential", "", "Credential presented on authentication")
	rootCmd.PersistentFlags().String("transcript", "", "Path of the local sqlite transcript cache (disabled when empty)")
	rootCmd.PersistentFlags().String("log-file", "", "Path of the debug log file (disabled when empty)")

	viper.BindPFlag(coordinatorAddressKey, rootCmd.PersistentFlags().Lookup("coordinator"))
	viper.BindPFlag(coordinatorNameKey, rootCmd.PersistentFlags().Lookup("coordinator-name"))
	viper.BindPFlag(displayNameKey, rootCmd.PersistentFlags().Lookup("name"))
	viper.BindPFlag(credentialKey, rootCmd.PersistentFlags().Lookup("credential"))
	viper.BindPFlag(transcriptPathKey, rootCmd.PersistentFlags().Lookup("transcript"))
	viper.BindPFlag(logPathKey, rootCmd.PersistentFlags().Lookup("log-file"))
	viper.SetDefault(coordinatorAddressKey, "ws://localhost:9090/ws")
	viper.SetDefault(coordinatorNameKey, "coordinator")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".salachat")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}

	coordinatorAddress = viper.GetString(coordinatorAddressKey)
	coordinatorName = viper.GetString(coordinatorNameKey)
	displayName = viper.GetString(displayNameKey)
	credential = viper.GetString(credentialKey)
	transcriptPath = viper.GetString(transcriptPathKey)
	logPath = viper.GetString(logPathKey)
}

func runSession(cmd *cobra.Command, args []string) error {
	if displayName == "" {
		return fmt.Errorf("falta el nombre de usuario: usa --name o display_name en la configuración")
	}

	logger, err := newLogger(logPath)
	if err != nil {
		return fmt.Errorf("no se pudo abrir el archivo de log: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	coord, err := coordinator.Connect(ctx, coordinatorAddress, displayName, credential, logger)
	if err != nil {
		return fmt.Errorf("no se pudo conectar con el coordinador: %w", err)
	}
	defer coord.Close()
	if err := coord.Ping(ctx); err != nil {
		return fmt.Errorf("el coordinador no responde: %w", err)
	}

	var store session.Transcript
	if transcriptPath != "" {
		ts, err := transcript.Open(transcriptPath)
		if err != nil {
			logger.Warn("transcript disabled", zap.Error(err))
		} else {
			defer ts.Close()
			store = ts
		}
	}

	recon := &session.Reconnector{
		CoordinatorName: coordinatorName,
		Resolver:        coordinator.StaticResolver{coordinatorName: coordinatorAddress},
		Connect: func(ctx context.Context, addr, username, credential string) (coordinator.Coordinator, error) {
			return coordinator.Connect(ctx, addr, username, credential, logger)
		},
		Log: logger,
	}

	fmt.Printf("conectado como %s\n", displayName)
	sess := session.New(session.Config{
		Username:    displayName,
		Coordinator: coord,
		Reconnector: recon,
		Input:       os.Stdin,
		Output:      os.Stdout,
		Transcript:  store,
		Logger:      logger,
	})
	return sess.Run(ctx)
}

func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	// The terminal belongs to the chat UI, so logs go to a file.
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
