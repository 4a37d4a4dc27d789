/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eventforge/internal/config"
	"eventforge/internal/fetcher"
	"eventforge/internal/generate"
	"eventforge/internal/llm"
	"eventforge/internal/scheduler"
	"eventforge/internal/store"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eventforge",
	Short: "Eventforge turns news feeds into playable game event cards.",
	Long: `Eventforge ingests configured news feeds, asks a generative backend to
turn the items into small game event cards, validates and scores the
candidates, and persists accepted ones in SQLite. Three scheduled jobs keep
the content fresh: daily generation, daily cleanup, and a 2-hourly
supplement that tops the pool up with creative events.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./eventforge.yaml or $HOME/.eventforge.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Load .env file if it exists (for local development)
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in current directory and home directory
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName("eventforge")
	}

	viper.AutomaticEnv()

	config.SetDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// app holds the wired pipeline components for the commands that need them.
type app struct {
	cfg       *config.Config
	store     *store.Store
	fetcher   *fetcher.Fetcher
	scheduler *scheduler.Scheduler
}

// buildApp constructs the full pipeline: store, fetcher, generator (with its
// backend client), and scheduler.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client, err := llm.NewClient(cfg.Gemini.Model)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	f := fetcher.New(cfg.Fetch, cfg.Sources, cfg.Keywords)
	gen := generate.New(client, cfg.Generation, llm.Options{
		Temperature: cfg.Gemini.Temperature,
		MaxTokens:   cfg.Gemini.MaxTokens,
	})

	return &app{
		cfg:       cfg,
		store:     st,
		fetcher:   f,
		scheduler: scheduler.New(cfg.Scheduler, f, gen, st),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}
