package main

import (
	"fmt"

	"github.com/danmuck/mrcplink/internal/callflow"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func echoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Run the echo IVR until interrupted",
		Long: `Greet the caller, start speech detection and speak every recognized
utterance back. Runs until SIGINT or until the server drops the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stopMetrics, err := opts.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			c, err := opts.newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			callflow.NewEcho(c, callflow.EchoConfig{
				WelcomeText:  opts.cfg.WelcomeText,
				NoInputText:  opts.cfg.NoInputText,
				DetectSpeech: opts.cfg.DetectSpeech,
			})
			log.Info().Str("session_id", c.SessionID()).Str("addr", c.Address()).Msg("echo leg starting")
			return callflow.Run(cmd.Context(), c, nil)
		},
	}
}

func spyCmd(opts *options) *cobra.Command {
	var startTimers bool

	cmd := &cobra.Command{
		Use:   "spy",
		Short: "Open a spy leg and print recognized text",
		Long: `Connect with {"Type":"spy"}, print the RTP port the server allocates for
pushed audio, then print every recognition result until SIGINT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stopMetrics, err := opts.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			c, err := opts.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			cfg := callflow.DefaultSpyConfig()
			cfg.DetectSpeech = opts.cfg.DetectSpeech
			cfg.DetectSpeech.StartInputTimers = startTimers
			cfg.OnText = func(text string) { fmt.Fprintf(out, "text: %s\n", text) }
			spy := callflow.NewSpy(c, cfg)

			ctx := cmd.Context()
			go func() {
				port, err := spy.WaitPort(ctx)
				if err != nil {
					log.Warn().Err(err).Str("session_id", c.SessionID()).Msg("no rtp port from server")
					return
				}
				fmt.Fprintf(out, "rtp_port: %d\n", port)
			}()
			return callflow.Run(ctx, c, spy.ConnectParams())
		},
	}
	cmd.Flags().BoolVar(&startTimers, "start-input-timers", false, "start no-input timers with recognition")
	return cmd
}
