package main

import (
	"github.com/spf13/cobra"

	"VoiceChat/internal/config"
)

var version = "dev"

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	envFiles []string
	debug    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "voicechat",
		Short: "Voice chatbot: speak, get a spoken answer",
		Long: `voicechat records a question in the browser, transcribes it with Deepgram,
answers it with Gemini and reads the answer back through Google Translate TTS.

API keys are read from GOOGLE_API_KEY and DEEPGRAM_API_KEY, either from the
environment or from a .env file.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newAskCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))

	return cmd
}

// loadConfig reads dotenv files and then the environment
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(o.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func execute() error {
	return newRootCommand().Execute()
}
