package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	apiBase string
	apiKey  string

	rootCmd = &cobra.Command{
		Use:   "safezone",
		Short: "Inspect and drive a running safezone agent",
	}

	queueCmd = &cobra.Command{
		Use:       "queue [sos|sms]",
		Short:     "Show pending alerts in a delivery queue",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"sos", "sms"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "GET", "/api/queues/"+args[0], nil)
		},
	}
	drainCmd = &cobra.Command{
		Use:       "drain [sos|sms|all]",
		Short:     "Run one drain pass now",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"sos", "sms", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "all" {
				return call(cmd, "POST", "/api/queues/drain", nil)
			}
			return call(cmd, "POST", "/api/queues/"+args[0]+"/drain", nil)
		},
	}
	clearCmd = &cobra.Command{
		Use:       "clear [sos|sms]",
		Short:     "Drop every pending entry of a queue",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"sos", "sms"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "DELETE", "/api/queues/"+args[0], nil)
		},
	}
	offlineCmd = &cobra.Command{
		Use:       "offline [on|off]",
		Short:     "Force the agent offline, or back online (which drains the queues)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "POST", "/api/connectivity", map[string]bool{"offline": args[0] == "on"})
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and escalation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call(cmd, "GET", "/api/connectivity", nil); err != nil {
				return err
			}
			return call(cmd, "GET", "/api/escalation", nil)
		},
	}
	ackCmd = &cobra.Command{
		Use:   "ack [minutes]",
		Short: "Acknowledge the high-risk alert and suppress escalation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("minutes must be a positive integer")
			}
			return call(cmd, "POST", "/api/escalation/ack", map[string]int{"minutes": n})
		},
	}
	muteCmd = &cobra.Command{
		Use:       "mute [on|off]",
		Short:     "Globally mute escalation notifications",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "POST", "/api/escalation/mute", map[string]bool{"muted": args[0] == "on"})
		},
	}
	reloadCmd = &cobra.Command{
		Use:   "reload-zones",
		Short: "Re-read the geofence file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "POST", "/api/geofences/reload", nil)
		},
	}
	transitionsCmd = &cobra.Command{
		Use:   "transitions",
		Short: "List recorded geofence enter/exit transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "GET", "/api/transitions", nil)
		},
	}
)

func init() {
	def := os.Getenv("API_BASE")
	if def == "" {
		def = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", def, "agent API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", os.Getenv("SAFEZONE_API_KEY"), "API key (admin key for mutations)")
	rootCmd.SilenceUsage = true
	rootCmd.AddCommand(queueCmd, drainCmd, clearCmd, offlineCmd, statusCmd, ackCmd, muteCmd, reloadCmd, transitionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func call(cmd *cobra.Command, method, path string, body any) error {
	req := resty.New().SetBaseURL(apiBase).R().SetContext(cmd.Context())
	if apiKey != "" {
		req.SetHeader("X-API-Key", apiKey)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("contacting agent: %w", err)
	}
	out := cmd.OutOrStdout()
	if resp.IsError() {
		return fmt.Errorf("agent returned %s: %s", resp.Status(), resp.String())
	}
	if len(resp.Body()) == 0 {
		fmt.Fprintln(out, resp.Status())
		return nil
	}
	var pretty any
	if err := json.Unmarshal(resp.Body(), &pretty); err != nil {
		fmt.Fprintln(out, resp.String())
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
