package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/voicemail"
	"github.com/pestline/pestline/pkg/slybroadcast"
)

var vmReq voicemail.Request

var voicemailCmd = &cobra.Command{
	Use:   "voicemail",
	Short: "Slybroadcast voicemail drops",
}

var voicemailSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Queue a voicemail drop to one phone number",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "voicemail")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, cleanup, err := initVoicemail(ctx, cfg, st)
		if err != nil {
			return err
		}
		defer cleanup()

		resp, err := svc.Send(ctx, vmReq)
		if err != nil {
			return eris.Wrap(err, "voicemail send")
		}

		zap.L().Info("voicemail queued",
			zap.String("session_id", resp.SessionID),
			zap.String("request_id", resp.RequestID),
			zap.String("scheduled_for", resp.ScheduledFor),
		)
		return nil
	},
}

var voicemailAudioCmd = &cobra.Command{
	Use:   "audio-files",
	Short: "List the audio files on the Slybroadcast account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc := cfg.Slybroadcast
		if sc.UID == "" || sc.Password == "" {
			return eris.New("slybroadcast uid and password are required (PESTLINE_SLYBROADCAST_UID, PESTLINE_SLYBROADCAST_PASSWORD)")
		}

		var opts []slybroadcast.Option
		if sc.BaseURL != "" {
			opts = append(opts, slybroadcast.WithBaseURL(sc.BaseURL))
		}
		files, err := slybroadcast.NewClient(sc.UID, sc.Password, opts...).AudioFiles(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "voicemail audio-files")
		}

		formatAudioFiles(os.Stdout, files)
		return nil
	},
}

func init() {
	f := voicemailSendCmd.Flags()
	f.StringVar(&vmReq.Phone, "phone", "", "destination phone number (required)")
	f.StringVar(&vmReq.Name, "name", "", "recipient name (required)")
	f.StringVar(&vmReq.PestType, "pest-type", "", "pest type noted in the campaign comment")
	f.StringVar(&vmReq.AudioFile, "audio", "", "audio file name (default from config)")
	f.StringVar(&vmReq.CallerID, "caller-id", "", "caller id (default from config)")
	f.StringVar(&vmReq.LeadID, "lead-id", "", "lead to annotate after sending")
	f.IntVar(&vmReq.DelayMinutes, "delay", 0, "minutes to wait before the drop")
	_ = voicemailSendCmd.MarkFlagRequired("phone")
	_ = voicemailSendCmd.MarkFlagRequired("name")

	voicemailCmd.AddCommand(voicemailSendCmd, voicemailAudioCmd)
	rootCmd.AddCommand(voicemailCmd)
}

func formatAudioFiles(out io.Writer, files []slybroadcast.AudioFile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDURATION\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t-------")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Name, orDash(f.Duration), orDash(f.CreatedDate))
	}
	_ = w.Flush()
}
