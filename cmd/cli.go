// SPDX-License-Identifier: MIT
//
// Package cmd parses the command line. Flags override configuration values
// only when they are given explicitly.
package cmd

import (
	"tonecast/internal/config"
	"tonecast/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands selected on the command line.
const (
	CommandRun   = ""
	CommandList  = "list"
	CommandDraft = "dictionary draft"
)

// Default bounds of the keys requested by "dictionary draft".
const (
	DefaultDraftMaxLow  = 3
	DefaultDraftMaxHigh = 3
)

// Invocation is the parsed command line.
type Invocation struct {
	Command    string
	ConfigPath string
	TUI        bool

	DraftOut     string
	DraftMaxLow  int
	DraftMaxHigh int

	flags *pflag.FlagSet

	device      int
	sampleRate  float64
	frameSize   int
	captureMode string
	file        string
	record      bool
	verbose     bool
}

// ParseArgs parses args, without the program name. It returns a nil
// Invocation when cobra already handled the request, e.g. --help or
// --version.
func ParseArgs(args []string) (*Invocation, error) {
	info := build.Get()
	inv := &Invocation{}
	ran := false

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = CommandRun
			ran = true
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = CommandList
			ran = true
			return nil
		},
	}

	dictCmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Manage the signature phrase dictionary",
	}
	draftCmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft signature phrases with the message-generation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = CommandDraft
			ran = true
			return nil
		},
	}
	draftCmd.Flags().StringVarP(&inv.DraftOut, "out", "o", "dictionary.yaml",
		"Output YAML file")
	draftCmd.Flags().IntVar(&inv.DraftMaxLow, "max-low", DefaultDraftMaxLow,
		"Highest low-window count to draft")
	draftCmd.Flags().IntVar(&inv.DraftMaxHigh, "max-high", DefaultDraftMaxHigh,
		"Highest high-window count to draft")
	dictCmd.AddCommand(draftCmd)

	rootCmd.AddCommand(listCmd, dictCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&inv.ConfigPath, "config", "C", "",
		"Configuration file (default: tonecast.yaml or config.yaml if present)")
	pf.IntVarP(&inv.device, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	pf.Float64VarP(&inv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&inv.frameSize, "frame-size", "n", config.DefaultFrameSize,
		"Samples per analysis frame (power of two)")
	pf.StringVarP(&inv.captureMode, "capture-mode", "m", config.CaptureModePortAudio,
		"Capture mode: portaudio, command or file")
	pf.StringVarP(&inv.file, "file", "f", "",
		"WAV file to play in file mode (implies --capture-mode file)")
	pf.BoolVarP(&inv.record, "record", "r", false,
		"Record the raw input stream to a WAV file")
	pf.BoolVarP(&inv.TUI, "tui", "t", false,
		"Show the live terminal monitor")
	pf.BoolVarP(&inv.verbose, "verbose", "v", false,
		"Show verbose output")
	inv.flags = pf

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if !ran {
		return nil, nil
	}
	return inv, nil
}

// Apply writes every explicitly set flag into cfg.
func (inv *Invocation) Apply(cfg *config.Config) {
	changed := inv.flags.Changed

	if changed("device") {
		cfg.Audio.InputDevice = inv.device
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = inv.sampleRate
	}
	if changed("frame-size") {
		cfg.Audio.FrameSize = inv.frameSize
	}
	if changed("file") {
		cfg.Audio.FallbackFile = inv.file
		if !changed("capture-mode") {
			cfg.Audio.CaptureMode = config.CaptureModeFile
		}
	}
	if changed("capture-mode") {
		cfg.Audio.CaptureMode = inv.captureMode
	}
	if changed("record") {
		cfg.Recording.Enabled = inv.record
	}
	if changed("verbose") && inv.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
}
