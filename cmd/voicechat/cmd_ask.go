package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"VoiceChat/internal/chatbot"
	"VoiceChat/internal/session"
)

func newAskCommand(root *rootOptions) *cobra.Command {
	var audioPath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Transcribe a recording, answer it and optionally save the spoken reply",
		Example: `  voicechat ask --audio question.wav
  voicechat ask --audio question.webm --out answer.mp3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := os.ReadFile(audioPath)
			if err != nil {
				return fmt.Errorf("failed to read recording: %w", err)
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			return ask(cmd.Context(), a.bot, audio, cmd.OutOrStdout(), cmd.ErrOrStderr(), outPath)
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Recording to transcribe (wav, webm, ogg, mp3)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the spoken reply (MP3) to this file")
	_ = cmd.MarkFlagRequired("audio")

	return cmd
}

// ask runs convert then generate on a throwaway session
func ask(ctx context.Context, bot *chatbot.Bot, audio []byte, out, errOut io.Writer, outPath string) error {
	store, err := session.NewStore(session.StoreOptions{MaxSessions: 1})
	if err != nil {
		return err
	}
	st := store.Start()
	defer store.End(st.ID)

	st.Lock()
	defer st.Unlock()

	bot.SetAudio(st, audio, "")
	res := bot.Convert(ctx, st)
	printNotices(errOut, res.Notices)
	if !st.HasTranscript() {
		return errors.New("no transcript produced")
	}
	fmt.Fprintf(out, "You said: %s\n", *st.Transcript)

	res = bot.Generate(ctx, st)
	printNotices(errOut, res.Notices)
	if !res.Generated {
		return errors.New("no reply generated")
	}
	fmt.Fprintln(out)
	for _, line := range bot.Render(st, false) {
		fmt.Fprintln(out, line)
	}

	if outPath != "" && len(res.Audio) > 0 {
		if err := os.WriteFile(outPath, res.Audio, 0644); err != nil {
			return fmt.Errorf("failed to write reply audio: %w", err)
		}
		fmt.Fprintf(errOut, "reply audio written to %s\n", outPath)
	}
	return nil
}

func printNotices(w io.Writer, notices []chatbot.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	}
}
