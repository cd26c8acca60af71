package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"verba.town/api"
	"verba.town/config"
	"verba.town/db"
	"verba.town/session"
	"verba.town/stt"
	"verba.town/ws"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	rootCmd.PersistentFlags().
		String("deepgram-api-key", "", "Deepgram API key")
	rootCmd.PersistentFlags().
		String("database-url", "", "Postgres connection URL")
	serveCmd.Flags().IntP("port", "p", 4444, "Port to run the HTTP server on")

	viper.BindPFlag(
		"deepgram_api_key",
		rootCmd.PersistentFlags().Lookup("deepgram-api-key"),
	)
	viper.BindPFlag(
		"database_url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("deepgram_model", "nova-2")
	viper.SetDefault("language", "en-US")

	_ = viper.ReadInConfig()

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "verba",
	Short: "Verba relays live audio to a speech recognition service",
	Long:  `Verba bridges client audio streams to a streaming speech recognition provider, streams transcript events back, and persists finalized segments.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcription relay server",
	Run:   runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write stored configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := mustOpenStore(ctx)
		defer store.Close()

		value, err := config.New(store).Get(ctx, args[0])
		if err != nil {
			logger.Fatal("get config", "error", err)
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a configuration value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := mustOpenStore(ctx)
		defer store.Close()

		if err := config.New(store).Set(ctx, args[0], args[1]); err != nil {
			logger.Fatal("set config", "error", err)
		}
	},
}

func mustOpenStore(ctx context.Context) *db.Store {
	store, err := db.Open(ctx, viper.GetString("database_url"), logger)
	if err != nil {
		logger.Fatal("open database", "error", err)
	}
	return store
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")
	ctx := context.Background()

	store := mustOpenStore(ctx)
	defer store.Close()

	if err := config.New(store).Load(ctx); err != nil {
		logger.Fatal("load stored config", "error", err)
	}

	recognizer, err := stt.NewDeepgramClient(
		viper.GetString("deepgram_api_key"),
		logger,
	)
	if err != nil {
		logger.Fatal("initialize recognizer", "error", err)
	}

	sessionConfig := stt.SessionConfig{
		Model:          viper.GetString("deepgram_model"),
		Language:       viper.GetString("language"),
		Punctuate:      true,
		InterimResults: true,
		Diarize:        true,
	}

	registry := session.NewRegistry()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	api.NewHandler(store, registry, logger).Routes(r)
	ws.NewHandler(registry, recognizer, store, sessionConfig, logger).Routes(r)

	logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), r); err != nil {
		logger.Fatal("server stopped", "error", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
