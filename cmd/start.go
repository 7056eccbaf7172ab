package cmd

import (
	"fmt"
	"net/http"
	"streamjobs/internal/auth"
	"streamjobs/internal/config"
	"streamjobs/internal/flow"
	"streamjobs/internal/model"

	"github.com/spf13/cobra"
)

var startReq flow.StartRequest

var startCmd = &cobra.Command{
	Use:   "start [migration|download|conversion] [urls or video ids...]",
	Short: "Start a background job",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}

		req := startReq
		switch kind {
		case model.KindDownload:
			req.URLs = append(req.URLs, args[1:]...)
		case model.KindConversion:
			req.VideoIDs = append(req.VideoIDs, args[1:]...)
		case model.KindMigration:
			req.Paths = append(req.Paths, args[1:]...)
			if err := fillToken(cmd, &req); err != nil {
				return err
			}
		}

		var result struct {
			Success        bool   `json:"success"`
			JobID          string `json:"jobId"`
			AlreadyRunning bool   `json:"alreadyRunning"`
			Error          string `json:"error"`
		}

		status, err := call(http.MethodPost, "/jobs/"+string(kind)+"/start", req, &result)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusConflict || result.AlreadyRunning:
			return fmt.Errorf("a %s job is already running for %s", kind, ownerID)
		case !result.Success:
			return fmt.Errorf("start rejected: %s", result.Error)
		}

		fmt.Printf("%s job started: id=%s\n", kind, result.JobID)
		return nil
	},
}

// fillToken uses the token stored by 'streamjobs auth' when a cloud
// migration is started without --token.
func fillToken(cmd *cobra.Command, req *flow.StartRequest) error {
	if req.Token != "" || (req.Protocol != auth.GDrive && req.Protocol != auth.Dropbox) {
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	p, err := auth.Load(dir, req.Protocol)
	if err != nil {
		return err
	}

	req.Token, err = p.AccessToken(cmd.Context())
	return err
}

func init() {
	f := startCmd.Flags()
	f.StringVar(&startReq.Protocol, "protocol", "ftp", "source protocol for migrations (ftp, local, gdrive, dropbox)")
	f.StringVar(&startReq.Host, "host", "", "source host")
	f.IntVar(&startReq.Port, "port", 21, "source port")
	f.StringVar(&startReq.Username, "user", "", "source username")
	f.StringVar(&startReq.Password, "password", "", "source password")
	f.StringVar(&startReq.Token, "token", "", "access token for gdrive or dropbox")
	f.BoolVar(&startReq.TLS, "tls", false, "use explicit FTPS")
	f.StringVar(&startReq.Root, "root", "", "source root folder")
	f.StringVar(&startReq.Destination, "dest", "", "library folder relative to the media root")
	f.StringVar(&startReq.Backend, "backend", "", "download backend (http, ytdlp)")
	f.StringVar(&startReq.Preset, "preset", "720p", "conversion preset")
	rootCmd.AddCommand(startCmd)
}
