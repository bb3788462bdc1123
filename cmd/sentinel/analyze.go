package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/intel"
	"github.com/opensource-finance/sentinel/internal/repository"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a single input and print the verdict as JSON",
}

func init() {
	analyzeCmd.PersistentFlags().Bool("explain", false, "include the evaluated signals")
	analyzeCmd.PersistentFlags().Bool("lookups", false, "consult the configured repository for reputation and domain age")

	urlCmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Score a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, domain.NewURLInput(args[0]))
		},
	}

	emailCmd := &cobra.Command{
		Use:   "email",
		Short: "Score an email",
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, _ := cmd.Flags().GetString("sender")
			subject, _ := cmd.Flags().GetString("subject")
			body, err := textOrFile(cmd, "body", "body-file")
			if err != nil {
				return err
			}
			headers, err := textOrFile(cmd, "", "headers-file")
			if err != nil {
				return err
			}
			if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
				return fmt.Errorf("--subject or --body is required")
			}
			return runAnalyze(cmd, domain.NewEmailInput(sender, subject, body, headers))
		},
	}
	emailCmd.Flags().String("sender", "", "From address")
	emailCmd.Flags().String("subject", "", "subject line")
	emailCmd.Flags().String("body", "", "message body")
	emailCmd.Flags().String("body-file", "", "read the body from a file (- for stdin)")
	emailCmd.Flags().String("headers-file", "", "read raw headers from a file")

	smsCmd := &cobra.Command{
		Use:   "sms <content>",
		Short: "Score an SMS message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, _ := cmd.Flags().GetString("sender")
			return runAnalyze(cmd, domain.NewSMSInput(args[0], sender))
		},
	}
	smsCmd.Flags().String("sender", "", "sender number or ID")

	voiceCmd := &cobra.Command{
		Use:   "voice",
		Short: "Score a phone call",
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, _ := cmd.Flags().GetFloat64("duration")
			if duration < 0 {
				return fmt.Errorf("--duration must not be negative")
			}
			transcript, err := textOrFile(cmd, "transcript", "transcript-file")
			if err != nil {
				return err
			}
			audio, err := jsonObjectFlag(cmd, "audio")
			if err != nil {
				return err
			}
			voice, err := jsonObjectFlag(cmd, "voice")
			if err != nil {
				return err
			}
			return runAnalyze(cmd, domain.NewVoiceInput(duration, transcript, audio, voice))
		},
	}
	voiceCmd.Flags().Float64("duration", 0, "call duration in seconds")
	voiceCmd.Flags().String("transcript", "", "call transcript")
	voiceCmd.Flags().String("transcript-file", "", "read the transcript from a file (- for stdin)")
	voiceCmd.Flags().String("audio", "", `audio features as a JSON object, e.g. {"speech_rate":210}`)
	voiceCmd.Flags().String("voice", "", `voice analysis as a JSON object, e.g. {"voice_type":"synthetic"}`)

	analyzeCmd.AddCommand(urlCmd, emailCmd, smsCmd, voiceCmd)
}

func runAnalyze(cmd *cobra.Command, in domain.RawInput) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	setupLogger(domain.LoggingConfig{Level: "error", Format: cfg.Logging.Format})
	if viper.GetBool("debug") {
		setupLogger(cfg.Logging)
	}

	var (
		store domain.ThreatIndicatorStore
		ages  domain.DomainAgeSource
	)
	if lookups, _ := cmd.Flags().GetBool("lookups"); lookups {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("failed to open repository: %w", err)
		}
		defer repo.Close()
		// The cache also resolves subdomains to their registrable domain.
		store = intel.NewCachedStore(intel.NewSQLStore(repo), cache.NewLRUCache(256), 0)
		ages = intel.NewAgeSource(repo)
	}

	eng, err := buildEngine(cfg.Scoring, store, ages)
	if err != nil {
		return err
	}

	exp := eng.Explain(cmd.Context(), in)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if explain, _ := cmd.Flags().GetBool("explain"); explain {
		return enc.Encode(exp)
	}
	return enc.Encode(exp.Verdict)
}

// textOrFile returns the value of the text flag, or the contents of the
// file flag when that is set. "-" reads stdin.
func textOrFile(cmd *cobra.Command, textFlag, fileFlag string) (string, error) {
	if path, _ := cmd.Flags().GetString(fileFlag); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read --%s: %w", fileFlag, err)
		}
		return string(data), nil
	}
	if textFlag == "" {
		return "", nil
	}
	s, _ := cmd.Flags().GetString(textFlag)
	return s, nil
}

func jsonObjectFlag(cmd *cobra.Command, name string) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", name, err)
	}
	return out, nil
}
