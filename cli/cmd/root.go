package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"southwinds.dev/cryptosvc"
	"southwinds.dev/cryptosvc/cache"
	"southwinds.dev/cryptosvc/collaborators/cacheclient"
	"southwinds.dev/cryptosvc/collaborators/logging"
	"southwinds.dev/cryptosvc/internal/crypto"
	"southwinds.dev/cryptosvc/lifecycle"
	"southwinds.dev/cryptosvc/observability"
	"southwinds.dev/cryptosvc/persist"
)

var (
	cfgFile string

	store       persist.Store
	keySvc      *cryptosvc.KeyService
	encSvc      *cryptosvc.EncryptionService
	sigSvc      *cryptosvc.SignatureService
	registry    *observability.Registry
	logClient   logging.Client
	coordinator *lifecycle.Coordinator
)

// rootCmd is the base command when cryptosvc is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "cryptosvc",
	Short: "Cryptographic core service: keys, encryption, signatures, file envelopes",
	Long: `cryptosvc exercises the cryptographic core locally: key lifecycle
management, symmetric/asymmetric encryption, digital signatures, and
streaming file envelope encryption. It stands in for the network façade
(gRPC/REST) that embeds the same core in production.`,
	PersistentPreRunE: initServices,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
			return nil
		}
		if coordinator == nil {
			return nil
		}
		timeout := viper.GetDuration("shutdown_timeout")
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return coordinator.Shutdown(ctx, timeout)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cryptosvc.yaml)")
	rootCmd.PersistentFlags().String("store-type", "", "key store backend: memory, filesystem, s3")
	rootCmd.PersistentFlags().String("store-path", "", "base path for the filesystem store")
	rootCmd.PersistentFlags().String("master-key-file", "", "path to the 32-byte raw master key file")
	rootCmd.PersistentFlags().String("master-key-base64", "", "base64-encoded 32-byte master key (or CRYPTOSVC_MASTER_KEY_BASE64 env var)")
	rootCmd.PersistentFlags().String("master-key-passphrase", "", "derive the master key from an operator passphrase via Argon2id (or CRYPTOSVC_MASTER_KEY_PASSPHRASE env var)")
	rootCmd.PersistentFlags().String("master-key-salt-file", "", "salt file for --master-key-passphrase (created on first use if absent)")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 object key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use SSL for S3 connections")
	rootCmd.PersistentFlags().String("redis-addr", "", "remote cache tier address (empty disables the remote tier)")
	rootCmd.PersistentFlags().Int("local-cache-size", 4096, "process-local key cache entry capacity")
	rootCmd.PersistentFlags().String("log-file", "", "local logging collaborator JSON-lines output path (default stderr)")

	bindFlagOrPanic("store.type", "store-type")
	bindFlagOrPanic("store.path", "store-path")
	bindFlagOrPanic("master_key_file", "master-key-file")
	bindFlagOrPanic("master_key_base64", "master-key-base64")
	bindFlagOrPanic("master_key_passphrase", "master-key-passphrase")
	bindFlagOrPanic("master_key_salt_file", "master-key-salt-file")
	bindFlagOrPanic("store.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("store.s3.region", "s3-region")
	bindFlagOrPanic("store.s3.bucket", "s3-bucket")
	bindFlagOrPanic("store.s3.prefix", "s3-prefix")
	bindFlagOrPanic("store.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("store.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("store.s3.use_ssl", "s3-use-ssl")
	bindFlagOrPanic("cache.redis_addr", "redis-addr")
	bindFlagOrPanic("cache.local_size", "local-cache-size")
	bindFlagOrPanic("log.file", "log-file")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/cryptosvc")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cryptosvc")
	}

	viper.SetEnvPrefix("CRYPTOSVC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("store.type", "memory")
	viper.SetDefault("store.path", ".cryptosvc/keys")
	viper.SetDefault("store.s3.region", "us-east-1")
	viper.SetDefault("store.s3.prefix", "cryptosvc/")
	viper.SetDefault("store.s3.use_ssl", true)
	viper.SetDefault("cache.local_size", 4096)
	viper.SetDefault("cache.ttl", 10*time.Minute)
	viper.SetDefault("default_validity", 365*24*time.Hour)
	viper.SetDefault("shutdown_timeout", 5*time.Second)
}

// initServices builds the key store, cache, observability registry, logging
// collaborator, lifecycle coordinator, and the three public services every
// subcommand operates against. Skipped for help/completion the same way
// the teacher's vault initializer skips them.
func initServices(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "help", "completion", "__complete", "config":
		return nil
	}
	if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		return nil
	}

	masterKey, err := loadMasterKey()
	if err != nil {
		return err
	}

	store, err = persist.NewStoreFromConfig(persist.StoreConfig{
		Type:     persist.StoreType(viper.GetString("store.type")),
		BasePath: viper.GetString("store.path"),
		S3: persist.S3Config{
			Endpoint:        viper.GetString("store.s3.endpoint"),
			Region:          viper.GetString("store.s3.region"),
			Bucket:          viper.GetString("store.s3.bucket"),
			KeyPrefix:       viper.GetString("store.s3.prefix"),
			AccessKeyID:     viper.GetString("store.s3.access_key_id"),
			SecretAccessKey: viper.GetString("store.s3.secret_access_key"),
			UseSSL:          viper.GetBool("store.s3.use_ssl"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize key store: %w", err)
	}

	logPath := viper.GetString("log.file")
	if logPath == "" {
		logClient = logging.NoopClient{}
	} else {
		logClient, err = logging.NewLocalFileClient(logPath, logging.BackgroundConfig{QueueSize: 1024, FlushInterval: time.Second})
		if err != nil {
			return fmt.Errorf("failed to initialize logging collaborator: %w", err)
		}
	}

	var remote cacheclient.Client = cacheclient.NoopClient{}
	if addr := viper.GetString("cache.redis_addr"); addr != "" {
		remote = cacheclient.NewRedisClient(cacheclient.RedisConfig{Addr: addr})
	}

	c, err := cache.NewTwoTier(cache.Config{
		LocalSize: viper.GetInt("cache.local_size"),
		Remote:    remote,
		TTL:       viper.GetDuration("cache.ttl"),
		Logger:    logClient,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize key cache: %w", err)
	}

	registry = observability.NewRegistry()

	keySvc, err = cryptosvc.NewKeyService(store, c, masterKey, viper.GetDuration("default_validity"), registry)
	if err != nil {
		return fmt.Errorf("failed to initialize key service: %w", err)
	}
	encSvc = cryptosvc.NewEncryptionService(keySvc)
	sigSvc = cryptosvc.NewSignatureService(keySvc)

	coordinator = lifecycle.Global()
	coordinator.Register(func(context.Context) error { return c.Close() })
	coordinator.Register(func(ctx context.Context) error { return logClient.Flush(ctx) })

	return nil
}

// loadMasterKey resolves the 32-byte master wrapping key from, in order:
// --master-key-file (raw bytes), --master-key-base64 /
// CRYPTOSVC_MASTER_KEY_BASE64 (base64), --master-key-passphrase (Argon2id over a persisted salt file),
// falling back to an error — cryptosvc never invents a key.
func loadMasterKey() ([]byte, error) {
	if path := viper.GetString("master_key_file"); path != "" {
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		return key, nil
	}
	if encoded := viper.GetString("master_key_base64"); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode master key: %w", err)
		}
		return key, nil
	}
	if passphrase := viper.GetString("master_key_passphrase"); passphrase != "" {
		return masterKeyFromPassphrase(passphrase)
	}
	return nil, fmt.Errorf("master key is required: use --master-key-file, --master-key-base64, or --master-key-passphrase")
}

// masterKeyFromPassphrase derives the master key from passphrase via
// Argon2id, reusing the salt file across restarts so the derived key stays
// stable. The salt itself carries no secrecy requirement; only the
// passphrase does.
func masterKeyFromPassphrase(passphrase string) ([]byte, error) {
	saltPath := viper.GetString("master_key_salt_file")
	if saltPath == "" {
		saltPath = filepath.Join(filepath.Dir(getConfigFilePath()), ".cryptosvc.salt")
	}

	salt, err := os.ReadFile(saltPath)
	if os.IsNotExist(err) {
		salt, err = crypto.NewSalt()
		if err != nil {
			return nil, fmt.Errorf("failed to generate master key salt: %w", err)
		}
		if mkErr := os.MkdirAll(filepath.Dir(saltPath), 0700); mkErr != nil {
			return nil, fmt.Errorf("failed to create salt directory: %w", mkErr)
		}
		if writeErr := os.WriteFile(saltPath, salt, 0600); writeErr != nil {
			return nil, fmt.Errorf("failed to persist master key salt: %w", writeErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read master key salt file: %w", err)
	}

	derived := crypto.DeriveMasterKey([]byte(passphrase), salt)
	key := append([]byte(nil), derived.Bytes()...)
	derived.Destroy()
	return key, nil
}

// isSensitiveFlag reports whether name looks like it carries secret
// material, for config/debug output redaction.
func isSensitiveFlag(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range []string{"key", "secret", "password", "token"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func getConfigFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cryptosvc.yaml")
}
