/*
Copyright © 2026 Your Name

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
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "Newsroom is an autonomous article generation pipeline.",
	Long: `Newsroom collects signals from configured sources, clusters them into
trending topics, synthesizes and scores articles with a generative-text
service, and publishes the ones that clear the quality gate. A learning
loop rewrites the prompt templates based on how published articles perform.`,
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

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.newsroom.yaml)")
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
		viper.SetConfigName(".newsroom")
	}

	// Automatically bind environment variables
	viper.AutomaticEnv()

	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-1.5-flash-latest")
	viper.SetDefault("data.dir", "data")
	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("scheduler.collection_interval", 30*time.Minute)
	viper.SetDefault("scheduler.generation_interval", 3*time.Hour)
	viper.SetDefault("scheduler.learning_interval", 24*time.Hour)
	viper.SetDefault("scheduler.burst_threshold", 50)
	viper.SetDefault("scheduler.min_data_points", 3)
	viper.SetDefault("scheduler.candidate_threshold", 70)
	viper.SetDefault("scheduler.top_k", 3)
	viper.SetDefault("scheduler.quality_threshold", 80)
	viper.SetDefault("scheduler.auto_publish_threshold", 90)
	viper.SetDefault("scheduler.learning_trigger", 75)
	viper.SetDefault("scheduler.learning_window_days", 7)
	viper.SetDefault("scheduler.min_learning_sample", 5)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
