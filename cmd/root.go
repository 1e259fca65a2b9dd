/*
Copyright © 2025 The Proofly Authors

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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.3.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "proofly",
	Short: "Transcript proofreading and restructuring pipeline",
	Long: `Proofly sends classroom-recording transcripts to an OpenAI-compatible LLM
in two passes: a basic proofreading pass that corrects each overlapping chunk,
and an editorial pass that restructures the corrected text into Markdown with
paragraphs, headings, and a highlights section.

Configuration comes from flags, environment variables (OPENAI_API_KEY,
OPENAI_BASE_URL, PROOFLY_*), a .env file, or a config file.

Use "proofly polish --help" for processing options.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.proofly.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// initConfig reads in the config file and matching PROOFLY_* environment
// variables, making both available to commands through viper.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".proofly")
		}
	}

	viper.SetEnvPrefix("PROOFLY")
	viper.AutomaticEnv()

	// A missing config file is fine.
	_ = viper.ReadInConfig()
}
